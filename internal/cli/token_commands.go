package cli

import (
	"fmt"
	"strings"

	"flexfetch/internal/store"
)

func runToken(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing token subcommand (expected set, get, or unset)")
	}

	st, err := store.OpenDefault()
	if err != nil {
		return err
	}
	defer st.Close()

	switch args[0] {
	case "set":
		if len(args) < 2 || strings.TrimSpace(args[1]) == "" {
			return fmt.Errorf("usage: flexfetch token set <token>")
		}
		if err := st.SetToken(args[1]); err != nil {
			return err
		}
		fmt.Println("token set")
		return nil
	case "get":
		token, ok, err := st.Token()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no token found; set one with: flexfetch token set <token>")
		}
		fmt.Println(token)
		return nil
	case "unset":
		if err := st.UnsetToken(); err != nil {
			return err
		}
		fmt.Println("token removed")
		return nil
	default:
		return fmt.Errorf("unknown token subcommand %q (expected set, get, or unset)", args[0])
	}
}
