package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const fileMarker = "_file_"

// Registry returns all CLI commands keyed by name.
func Registry() map[string]Command {
	commands := []Command{
		{
			Name:         "run",
			Summary:      "judge code against the sample cases of a problem",
			Method:       "POST",
			PathTemplate: "/api/v1/judge/run",
			Fields: []Field{
				{Name: "problem_id", Aliases: []string{"problem"}, Prompt: "problem_id", Type: FieldInt64, Required: true},
				{Name: "language", Aliases: []string{"lang"}, Prompt: "language", Type: FieldString, Required: true},
				{Name: "code", Prompt: "code", Type: FieldString, Required: true},
				{Name: "code_file", Aliases: []string{"file"}, Prompt: "code_file", Type: FieldFile},
			},
		},
		{
			Name:         "execute",
			Summary:      "run code once on custom input",
			Method:       "POST",
			PathTemplate: "/api/v1/judge/execute",
			Fields: []Field{
				{Name: "language", Aliases: []string{"lang"}, Prompt: "language", Type: FieldString, Required: true},
				{Name: "code", Prompt: "code", Type: FieldString, Required: true},
				{Name: "code_file", Aliases: []string{"file"}, Prompt: "code_file", Type: FieldFile},
				{Name: "input", Prompt: "input", Type: FieldString},
				{Name: "input_file", Prompt: "input_file", Type: FieldFile},
			},
		},
		{
			Name:         "submit",
			Summary:      "judge a stored submission against every test case",
			Method:       "POST",
			PathTemplate: "/api/v1/judge/submissions/:id/judge",
			Fields: []Field{
				{Name: "id", Aliases: []string{"submission_id"}, Prompt: "submission_id", Type: FieldString, Required: true},
				{Name: "async", Prompt: "async", Type: FieldBool},
			},
		},
		{
			Name:         "status",
			Summary:      "show the live status of a submission",
			Method:       "GET",
			PathTemplate: "/api/v1/judge/submissions/:id",
			Fields: []Field{
				{Name: "id", Aliases: []string{"submission_id"}, Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Name:         "cancel",
			Summary:      "stop an in-flight judging pass",
			Method:       "DELETE",
			PathTemplate: "/api/v1/judge/submissions/:id",
			Fields: []Field{
				{Name: "id", Aliases: []string{"submission_id"}, Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Name:         "watch",
			Summary:      "stream status changes until judging finishes",
			Method:       "GET",
			PathTemplate: "/api/v1/judge/submissions/:id/watch",
			Stream:       true,
			Fields: []Field{
				{Name: "id", Aliases: []string{"submission_id"}, Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Name] = cmd
	}
	return result
}

// Names returns command names in a stable order.
func Names(commands map[string]Command) []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyFileShortcuts marks a field as satisfied by its companion file when
// only the file was given, so the REPL does not prompt for it.
func ApplyFileShortcuts(params Params) {
	if params.Get("code_file") != "" && params.Get("code") == "" {
		params.Set("code", fileMarker)
	}
}

// Satisfied reports whether a required field already has a usable value.
func Satisfied(params Params, field Field) bool {
	return params.Has(field.Name) && params.Get(field.Name) != ""
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}
	if cmd.Name == "submit" && params.Get("async") != "" {
		async, err := ParseBool(params.Get("async"))
		if err != nil {
			return RequestSpec{}, fmt.Errorf("invalid async: %w", err)
		}
		if async {
			path += "?" + url.Values{"async": []string{"true"}}.Encode()
		}
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method: cmd.Method,
		Path:   path,
		Body:   body,
		Stream: cmd.Stream,
	}, nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	if strings.Contains(path, ":id") {
		value := strings.TrimSpace(params.Get("id"))
		if value == "" {
			return "", fmt.Errorf("missing path parameter: id")
		}
		path = strings.ReplaceAll(path, ":id", url.PathEscape(value))
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	switch cmd.Name {
	case "run":
		problemID, err := ParseInt64(params.Get("problem_id"))
		if err != nil {
			return nil, fmt.Errorf("invalid problem_id: %w", err)
		}
		code, err := valueOrFile(params, "code", "code_file")
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"problem_id": problemID,
			"language":   params.Get("language"),
			"code":       code,
		}, nil
	case "execute":
		code, err := valueOrFile(params, "code", "code_file")
		if err != nil {
			return nil, err
		}
		input, err := valueOrFile(params, "input", "input_file")
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"language": params.Get("language"),
			"code":     code,
			"input":    input,
		}, nil
	}
	return nil, nil
}

// valueOrFile prefers the file when one is named.
func valueOrFile(params Params, key, fileKey string) (string, error) {
	if path := params.Get(fileKey); path != "" {
		return ReadFile(path)
	}
	value := params.Get(key)
	if value == fileMarker {
		return "", nil
	}
	return value, nil
}
