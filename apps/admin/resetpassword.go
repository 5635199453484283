package main

import (
	"context"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/user"
	"github.com/trezcool/examtrack/storage/database"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	var hashed user.User
	if err := hashed.SetPassword(pwd); err != nil {
		return err
	}

	return database.NewTransactor(cli.db).WithinTx(context.Background(), func(ctx context.Context) error {
		usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: core.CleanString(email, true /* lower */), ForUpdate: true})
		if err != nil {
			return err
		}
		usr.PasswordHash = hashed.PasswordHash
		usr.UpdatedAt = core.Now()
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
		return err
	})
}
