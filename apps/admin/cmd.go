package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/premium"
	"github.com/trezcool/examtrack/core/syllabus"
	"github.com/trezcool/examtrack/core/user"
	"github.com/trezcool/examtrack/storage/database"
)

var (
	readPasswordFunc  = term.ReadPassword      // mockable
	runMigrationsFunc = database.RunMigrations // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db          *sqlx.DB
	usrRepo     user.Repository
	syllabusSvc syllabus.Service
	premiumSvc  premium.Service
	logger      core.Logger
	out         io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.output(), "Usage:")
	fmt.Fprintln(cli.output(), "  adduser -name NAME -email EMAIL [-role ROLE] [-premium] - create or update a user; the password is prompted")
	fmt.Fprintln(cli.output(), "  resetpassword -email EMAIL - reset a user's password; the password is prompted")
	fmt.Fprintln(cli.output(), "  migrate COMMAND [ARGS...] - run a migration command (up, down, status, ...)")
	fmt.Fprintln(cli.output(), "  seedsyllabus [-force] - load the default NEET/JEE syllabus")
	fmt.Fprintln(cli.output(), "  gencode -admin EMAIL [-n COUNT] - generate premium activation codes")
}

func (cli *commandLine) output() io.Writer {
	if cli.out == nil {
		return os.Stdout
	}
	return cli.out
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.output(), "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.output())
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRole := addUserCmd.String("role", user.RoleAdmin, "The user's role: admin, subadmin or user.")
	addUserPremium := addUserCmd.Bool("premium", false, "Unlock premium features.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	seedCmd := flag.NewFlagSet("seedsyllabus", flag.ContinueOnError)
	seedForce := seedCmd.Bool("force", false, "Overwrite the syllabus edited by admins.")

	genCodeCmd := flag.NewFlagSet("gencode", flag.ContinueOnError)
	genCodeAdmin := genCodeCmd.String("admin", "", "The email of the admin generating the codes.")
	genCodeCount := genCodeCmd.Int("n", 1, "The number of codes to generate (max 50).")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, seedCmd, genCodeCmd} {
		fs.SetOutput(cli.output())
	}

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserName == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserEmail, pwd, *addUserRole, *addUserPremium)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "seedsyllabus":
		if err := seedCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.seedSyllabus(*seedForce)

	case "gencode":
		if err := genCodeCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *genCodeAdmin == "" || *genCodeCount < 1 || *genCodeCount > 50 {
			genCodeCmd.Usage()
			return errHelp
		}
		return cli.genCode(*genCodeAdmin, *genCodeCount)

	default:
		cli.printUsage()
		return errHelp
	}
}
