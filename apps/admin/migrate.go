package main

import (
	"context"
	"fmt"

	"github.com/trezcool/examtrack/core/user"
)

func (cli *commandLine) migrate(args []string) error {
	return runMigrationsFunc(context.Background(), cli.db, cli.logger, args[0], args[1:]...)
}

func (cli *commandLine) seedSyllabus(force bool) error {
	n, err := cli.syllabusSvc.Seed(context.Background(), force)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(cli.output(), "syllabus already seeded, use -force to overwrite it")
		return nil
	}
	fmt.Fprintf(cli.output(), "%d subjects seeded\n", n)
	return nil
}

func (cli *commandLine) genCode(adminEmail string, count int) error {
	ctx := context.Background()
	admin, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: adminEmail})
	if err != nil {
		return err
	}
	if !admin.IsAdmin() {
		return fmt.Errorf("%s is not an admin", admin.Email)
	}

	codes, err := cli.premiumSvc.Generate(ctx, admin, count)
	if err != nil {
		return err
	}
	for _, c := range codes {
		fmt.Fprintln(cli.output(), c.Code)
	}
	return nil
}
