package main

import (
	"context"
	"fmt"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/user"
	"github.com/trezcool/examtrack/storage/database"
)

// addUser updates or creates an active, onboarded user.User
func (cli *commandLine) addUser(name, email, pwd, role string, premium bool) error {
	ctx := context.Background()
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)
	if user.RolePriority(role) == 0 {
		return user.ErrInvalidRole
	}

	var hashed user.User
	if err := hashed.SetPassword(pwd); err != nil {
		return err
	}

	var usr user.User
	err := database.NewTransactor(cli.db).WithinTx(ctx, func(ctx context.Context) error {
		var err error
		usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email, ForUpdate: true})
		exists := err == nil
		if err != nil {
			if err != user.ErrNotFound {
				return err
			}
			usr = user.User{Email: email, CreatedAt: core.Now()}
		}

		usr.Name = name
		usr.Role = role
		usr.AccountStatus = user.StatusActive
		usr.IsPremium = premium
		usr.IsDeleted = false
		usr.PasswordHash = hashed.PasswordHash
		usr.UpdatedAt = core.Now()
		if exists {
			usr, err = cli.usrRepo.UpdateUser(ctx, usr)
		} else {
			usr, err = cli.usrRepo.CreateUser(ctx, usr)
		}
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.output(), "%s <%s> saved with role %q\n", usr.Name, usr.Email, usr.Role)
	return nil
}
