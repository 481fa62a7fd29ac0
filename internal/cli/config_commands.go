package cli

import (
	"fmt"
	"sort"
	"strconv"

	"flexfetch/internal/poll"
	"flexfetch/internal/store"
)

func runConfig(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing config subcommand (expected set, get, unset, or list)")
	}

	st, err := store.OpenDefault()
	if err != nil {
		return err
	}
	defer st.Close()

	switch args[0] {
	case "set":
		if len(args) < 3 {
			return fmt.Errorf("usage: flexfetch config set <key> <value>")
		}
		key, value := args[1], args[2]
		validate, ok := knownConfigKeys[key]
		if !ok {
			return fmt.Errorf("unknown config key %q (known: %s)", key, knownConfigKeyList())
		}
		if err := validate(value); err != nil {
			return fmt.Errorf("%s: %v", key, err)
		}
		if err := st.SetConfig(key, value); err != nil {
			return err
		}
		fmt.Printf("set %s = %s\n", key, value)
		return nil
	case "get":
		if len(args) < 2 {
			return fmt.Errorf("usage: flexfetch config get <key>")
		}
		value, ok, err := st.Config(args[1])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("%s is not set\n", args[1])
			return nil
		}
		fmt.Printf("%s = %s\n", args[1], value)
		return nil
	case "unset":
		if len(args) < 2 {
			return fmt.Errorf("usage: flexfetch config unset <key>")
		}
		removed, err := st.UnsetConfig(args[1])
		if err != nil {
			return err
		}
		if removed {
			fmt.Printf("unset %s\n", args[1])
		} else {
			fmt.Printf("%s was not set\n", args[1])
		}
		return nil
	case "list":
		return printConfigList(st)
	default:
		return fmt.Errorf("unknown config subcommand %q (expected set, get, unset, or list)", args[0])
	}
}

func printConfigList(st *store.Store) error {
	dataDir, err := store.DefaultDataDir()
	if err != nil {
		return err
	}
	defaults := map[string]string{
		configOutputDir:    dataDir,
		configPollInterval: strconv.Itoa(int(poll.DefaultInterval.Seconds())),
		configMaxAttempts:  strconv.Itoa(poll.DefaultMaxAttempts),
	}

	current := make(map[string]string)
	kvs, err := st.ListConfig()
	if err != nil {
		return err
	}
	for _, kv := range kvs {
		current[kv[0]] = kv[1]
	}

	fmt.Println("configuration (* = non-default):")
	for _, key := range sortedKeys(defaults) {
		if v, ok := current[key]; ok && v != defaults[key] {
			fmt.Printf("* %s = %s\n", key, v)
		} else if ok {
			fmt.Printf("  %s = %s\n", key, v)
		} else {
			fmt.Printf("  %s = %s (default)\n", key, defaults[key])
		}
	}
	return nil
}

func knownConfigKeyList() string {
	keys := make([]string, 0, len(knownConfigKeys))
	for k := range knownConfigKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += k
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
