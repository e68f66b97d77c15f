package main

import (
	"context"

	"github.com/edecs/academy/core/identity"
)

// createUser updates or creates a principal, without an acting administrator.
func (cli *commandLine) createUser(email, name, role, dept, pwd string) error {
	usr, err := cli.ids.Bootstrap(context.Background(), identity.NewPrincipal{
		Email:           email,
		Name:            name,
		Department:      dept,
		Role:            role,
		Password:        pwd,
		PasswordConfirm: pwd,
	})
	if err != nil {
		return err
	}
	cli.printf("%s saved with role %s\n", usr.Email, usr.Role)
	return nil
}
