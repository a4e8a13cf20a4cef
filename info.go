package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/vipnode/stdiorpc/deltachat"
)

func runInfo(options Options, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), options.Timeout)
	defer cancel()

	s, err := connect(ctx, options)
	if err != nil {
		return err
	}
	defer s.Close()

	api := deltachat.New(s)
	info, err := api.SystemInfo(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%s: %s\n", k, info[k])
	}

	ids, err := api.AllAccountIDs(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "accounts: %v\n", ids)
	return nil
}
