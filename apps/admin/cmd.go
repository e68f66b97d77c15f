package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/edecs/academy/core/identity"
	"github.com/edecs/academy/core/report"
	"github.com/edecs/academy/core/task"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("migrate requires the postgres store engine")
)

type commandLine struct {
	db      *sql.DB // nil unless the postgres store is configured
	ids     *identity.Service
	ledger  *task.Ledger
	reports *report.Service
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  createuser -email EMAIL -name NAME [-role ROLE] [-department DEPT] - create or update a user")
	fmt.Println("  resetpassword -email EMAIL - reset user's password")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Println("  migrateroles - rewrite legacy role spellings to their canonical names")
	fmt.Println("  reconcile - recreate the missing notifications of active tasks")
	fmt.Println("  export [-format csv|xlsx] [-out FILE] - export the progress report")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createUserCmd := flag.NewFlagSet("createuser", flag.ExitOnError)
	createUserEmail := createUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	createUserName := createUserCmd.String("name", "", "The user's name.")
	createUserRole := createUserCmd.String("role", string(identity.RoleSuperAdmin), "The user's role.")
	createUserDept := createUserCmd.String("department", "", "The user's department.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	exportFormat := exportCmd.String("format", report.FormatCSV, "The export format: csv or xlsx.")
	exportOut := exportCmd.String("out", "-", "The output file; - writes to stdout.")

	switch args[1] {
	case "createuser":
		if err := createUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *createUserEmail == "" || *createUserName == "" {
			createUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(createUserCmd)
		if err != nil {
			return err
		}
		return cli.createUser(*createUserEmail, *createUserName, *createUserRole, *createUserDept, pwd)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "migrateroles":
		return cli.migrateRoles()
	case "reconcile":
		return cli.reconcile()
	case "export":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.export(*exportFormat, *exportOut)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) readPassword(cmd *flag.FlagSet) (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		cmd.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	out := cli.out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, format, args...)
}
