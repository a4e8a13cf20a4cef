package fakeserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// parsePositionalArguments takes the params of a JSONRPC request and decodes
// each positional argument into the reflected value of its type.
func parsePositionalArguments(msgParams json.RawMessage, types []reflect.Type) ([]reflect.Value, error) {
	if isNull(msgParams) {
		if len(types) > 0 {
			return nil, errors.New("no params given")
		}
		return nil, nil
	}
	if !isArray(msgParams) {
		return nil, errors.New("params must be an array or an object")
	}

	var args []json.RawMessage
	if err := json.Unmarshal(msgParams, &args); err != nil {
		return nil, err
	}
	if len(args) > len(types) {
		return nil, errors.New("too many arguments")
	}
	if len(args) < len(types) {
		return nil, errors.New("not enough arguments")
	}

	values := make([]reflect.Value, 0, len(types))
	for i, arg := range args {
		value := reflect.New(types[i])
		if err := json.Unmarshal(arg, value.Interface()); err != nil {
			return nil, fmt.Errorf("argument %d: %s", i, err)
		}
		values = append(values, value.Elem())
	}
	return values, nil
}

// parseNamedArguments decodes an object of named params into a method's only
// argument, typically a struct or a map.
func parseNamedArguments(msgParams json.RawMessage, types []reflect.Type) ([]reflect.Value, error) {
	if len(types) != 1 {
		return nil, fmt.Errorf("named params need a method with exactly one argument, got %d", len(types))
	}
	value := reflect.New(types[0])
	if err := json.Unmarshal(msgParams, value.Interface()); err != nil {
		return nil, err
	}
	return []reflect.Value{value.Elem()}, nil
}
