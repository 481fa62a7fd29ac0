package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	var err error
	switch args[0] {
	case "token":
		err = runToken(args[1:])
	case "query":
		err = runQuery(args[1:])
	case "download":
		err = runDownload(args[1:])
	case "fetch":
		err = runFetch(args[1:])
	case "config":
		err = runConfig(args[1:])
	case "status":
		err = runStatus(args[1:])
	case "manage":
		err = runManage(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	return err
}

func printRootUsage() {
	fmt.Println("flexfetch: download IBKR Flex reports via the Flex Web Service")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  flexfetch token set <token>")
	fmt.Println("  flexfetch query add <query-id> --name \"Daily activity\"")
	fmt.Println("  flexfetch download all")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  token     set/get/unset the Flex Web Service token")
	fmt.Println("  query     add, remove, rename, set intervals for, and list queries")
	fmt.Println("  download  download one query, or every query that is due")
	fmt.Println("  fetch     retrieve a statement by reference code from an earlier run")
	fmt.Println("  status    due-ness rollup for all queries")
	fmt.Println("  config    show/update default settings")
	fmt.Println("  manage    interactive query manager")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - Queries are skipped while inside their refresh interval; --force overrides")
}
