package kv

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/spf13/cobra"
)

// readFailed turns the silent absence of a degraded read into an error for the cli
func readFailed() error {
	return rpcStore.LastError()
}

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.Write(args[0], []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, ok := rpcStore.Read(args[0])
			if err := readFailed(); err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%v, value=%s\n", args[0], ok, value)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.Remove(args[0]); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found := rpcStore.Has(args[0])
			if err := readFailed(); err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%t\n", args[0], found)
			return nil
		},
	}
	countCmd = &cobra.Command{
		Use:   "count",
		Short: "Prints the number of records in the shard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n := rpcStore.Count()
			if err := readFailed(); err != nil {
				return err
			}
			fmt.Printf("count=%d\n", n)
			return nil
		},
	}
	keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "Lists all keys of the shard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := rpcStore.Keys()
			if err := readFailed(); err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Println(k)
			}
			return nil
		},
	}
	msetCmd = &cobra.Command{
		Use:   "mset [key=value]...",
		Short: "Writes several key value pairs as one batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := parsePairs(args)
			if err != nil {
				return err
			}
			if err := rpcStore.WriteMany(pairs); err != nil {
				return err
			}
			fmt.Printf("set %d keys successfully\n", len(pairs))
			return nil
		},
	}
	mgetCmd = &cobra.Command{
		Use:   "mget [key]...",
		Short: "Reads several keys, missing keys are omitted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs := rpcStore.ReadManyWithKeys(args)
			if err := readFailed(); err != nil {
				return err
			}
			printPairs(pairs)
			return nil
		},
	}
	mdelCmd = &cobra.Command{
		Use:   "mdel [key]...",
		Short: "Deletes several keys as one batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.RemoveMany(args); err != nil {
				return err
			}
			fmt.Printf("deleted %d keys successfully\n", len(args))
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Deletes all records of the shard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.RemoveAll(); err != nil {
				return err
			}
			fmt.Println("cleared successfully")
			return nil
		},
	}
	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Prints all records of the shard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs := rpcStore.ReadAllWithKeys()
			if err := readFailed(); err != nil {
				return err
			}
			printPairs(pairs)
			return nil
		},
	}
	timesCmd = &cobra.Command{
		Use:   "times [key]",
		Short: "Prints when a key was created and last updated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			created, ok := rpcStore.CreatedAt(args[0])
			updated, _ := rpcStore.UpdatedAt(args[0])
			if err := readFailed(); err != nil {
				return err
			}
			if !ok {
				fmt.Printf("key=%s, found=false\n", args[0])
				return nil
			}
			fmt.Printf("key=%s, created=%s, updated=%s\n", args[0], created.Format(time.RFC3339Nano), updated.Format(time.RFC3339Nano))
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints information about the database behind the shard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := rpcStore.GetDBInfo()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
)

// parsePairs parses key=value arguments, the value may contain further '=' characters
func parsePairs(args []string) ([]store.KeyValue, error) {
	pairs := make([]store.KeyValue, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid pair %q (expected key=value)", arg)
		}
		pairs = append(pairs, store.KeyValue{Key: key, Value: []byte(value)})
	}
	return pairs, nil
}

func printPairs(pairs []store.KeyValue) {
	for _, p := range pairs {
		fmt.Printf("%s=%s\n", p.Key, p.Value)
	}
}
