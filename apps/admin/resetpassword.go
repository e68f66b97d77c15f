package main

import (
	"context"

	"github.com/edecs/academy/core/identity"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	return cli.ids.ResetPassword(context.Background(), identity.SetPassword{
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
	})
}
