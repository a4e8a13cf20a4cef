package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// parseParams turns command line values into positional params. Values that
// are valid JSON are sent as-is, anything else as a string.
func parseParams(args []string) []interface{} {
	params := make([]interface{}, 0, len(args))
	for _, arg := range args {
		if json.Valid([]byte(arg)) {
			params = append(params, json.RawMessage(arg))
		} else {
			params = append(params, arg)
		}
	}
	return params
}

// parseNamedParams parses the single JSON object given for --named.
func parseNamedParams(args []string) (map[string]interface{}, error) {
	if len(args) != 1 {
		return nil, errors.New("--named takes exactly one JSON object")
	}
	var params map[string]interface{}
	if err := json.Unmarshal([]byte(args[0]), &params); err != nil {
		return nil, ErrExplain{err, "The params of --named must be a JSON object, such as '{\"key\": \"value\"}'."}
	}
	return params, nil
}

func runCall(options Options, out io.Writer) error {
	method := options.Call.Args.Method
	var named map[string]interface{}
	if options.Call.Named {
		var err error
		if named, err = parseNamedParams(options.Call.Args.Params); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), options.Timeout)
	defer cancel()

	s, err := connect(ctx, options)
	if err != nil {
		return err
	}
	defer s.Close()

	var result json.RawMessage
	if options.Call.Named {
		err = s.CallNamed(ctx, &result, method, named)
	} else {
		err = s.Call(ctx, &result, method, parseParams(options.Call.Args.Params)...)
	}
	if err != nil {
		return err
	}

	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, result, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(out)
	if err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
