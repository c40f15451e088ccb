package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/smartcampus/campus-client/internal/campus"
	"github.com/smartcampus/campus-client/internal/gateway"
	"github.com/smartcampus/campus-client/internal/jwt"
	"github.com/smartcampus/campus-client/internal/session"
	"gopkg.in/yaml.v3"
)

// HTTPStatuser provides HTTP status information for errors
type HTTPStatuser interface {
	Status() (int, string)
}

// usageError reports a malformed command line.
type usageError struct {
	message string
}

func (e *usageError) Error() string {
	return e.message
}

func usagef(format string, args ...any) error {
	return &usageError{message: fmt.Sprintf(format, args...)}
}

const usage = `usage: campus [-o json|yaml] <command> [arguments]

commands:
  login <email> <password>      sign in and store the session
  logout                        sign out and clear the session
  status                        show the stored session
  profile                       show your profile
  profile update <json|->       change profile fields
  list <resource>               list a resource
  get <resource> <id>           show one item
  create <resource> <json|->    create an item from JSON ("-" reads stdin)
  vote <poll-id> <option-id>    vote in a poll
  register <event-id>           register for an event

resources: ` + "issues, lost-found, help, feedback, polls, confessions, events"

type command func(ctx context.Context, client *campus.Client, args []string) (any, error)

var commands = map[string]command{
	"login":    runLogin,
	"logout":   runLogout,
	"status":   runStatus,
	"profile":  runProfile,
	"list":     runList,
	"get":      runGet,
	"create":   runCreate,
	"vote":     runVote,
	"register": runRegister,
}

// stdin is replaced in tests.
var stdin io.Reader = os.Stdin

// execute parses the global flags, runs the command and writes its result to
// out.
func execute(ctx context.Context, client *campus.Client, out io.Writer, args []string) error {
	flags := flag.NewFlagSet("campus", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	format := flags.String("o", "json", "output format: json or yaml")

	if err := flags.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if *format != "json" && *format != "yaml" {
		return usagef("unknown output format %q", *format)
	}

	if flags.NArg() == 0 {
		return usagef("no command given")
	}

	name, rest := flags.Arg(0), flags.Args()[1:]
	cmd, found := commands[name]
	if !found {
		return usagef("unknown command %q", name)
	}

	result, err := cmd(ctx, client, rest)
	if err != nil {
		return err
	}

	return render(out, *format, result)
}

func render(out io.Writer, format string, result any) error {
	if result == nil {
		return nil
	}

	if format == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(toPlain(result)); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		return enc.Close()
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

// toPlain converts result to generic maps and slices so YAML output uses the
// JSON field names.
func toPlain(result any) any {
	data, err := json.Marshal(result)
	if err != nil {
		return result
	}

	var plain any
	if err := json.Unmarshal(data, &plain); err != nil {
		return result
	}
	return plain
}

// report writes err for the user and returns the exit code.
func report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}

	if errors.Is(err, gateway.ErrSessionExpired) {
		fmt.Fprintln(w, "session expired, please log in again")
		return 2
	}

	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(w, "%s\n\n%s\n", usageErr.message, usage)
		return 1
	}

	var statuser HTTPStatuser
	if errors.As(err, &statuser) {
		status, message := statuser.Status()
		fmt.Fprintf(w, "error: %s (status %d)\n", message, status)
		return 1
	}

	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}

func runLogin(ctx context.Context, client *campus.Client, args []string) (any, error) {
	if len(args) != 2 {
		return nil, usagef("login takes an email and a password")
	}

	return client.Login(ctx, args[0], args[1])
}

func runLogout(ctx context.Context, client *campus.Client, args []string) (any, error) {
	if len(args) != 0 {
		return nil, usagef("logout takes no arguments")
	}

	return nil, client.Logout(ctx)
}

type status struct {
	Authenticated bool          `json:"authenticated"`
	User          *session.User `json:"user,omitempty"`
	Subject       string        `json:"subject,omitempty"`
	ExpiresAt     *time.Time    `json:"expiresAt,omitempty"`
	Expired       bool          `json:"expired,omitempty"`
}

// runStatus reports the stored session without contacting the service.
func runStatus(_ context.Context, client *campus.Client, args []string) (any, error) {
	if len(args) != 0 {
		return nil, usagef("status takes no arguments")
	}

	s := client.Session()
	if s.AccessToken == "" {
		return status{}, nil
	}

	result := status{Authenticated: true, User: s.User}

	info := jwt.Inspect(s.AccessToken)
	if !info.Opaque {
		result.Subject = info.Subject
		if !info.ExpiresAt.IsZero() {
			expiry := info.ExpiresAt
			result.ExpiresAt = &expiry
		}
		result.Expired = info.Expired(time.Now())
	}

	return result, nil
}

func runProfile(ctx context.Context, client *campus.Client, args []string) (any, error) {
	switch {
	case len(args) == 0:
		return client.Profile(ctx)

	case len(args) == 2 && args[0] == "update":
		var update campus.ProfileUpdate
		if err := decodeArgument(args[1], &update); err != nil {
			return nil, err
		}
		return client.UpdateProfile(ctx, update)

	default:
		return nil, usagef("profile takes no arguments, or update <json>")
	}
}

// resource adapts a typed campus resource to the command line.
type resource struct {
	list   func(ctx context.Context) (any, error)
	get    func(ctx context.Context, id string) (any, error)
	create func(ctx context.Context, input string) (any, error)
}

func bind[T any, N interface{ Validate() error }](r *campus.Resource[T, N]) resource {
	return resource{
		list: func(ctx context.Context) (any, error) {
			return r.List(ctx)
		},
		get: func(ctx context.Context, id string) (any, error) {
			return r.Get(ctx, id)
		},
		create: func(ctx context.Context, input string) (any, error) {
			var n N
			if err := decodeArgument(input, &n); err != nil {
				return nil, err
			}
			return r.Create(ctx, n)
		},
	}
}

func resources(client *campus.Client) map[string]resource {
	return map[string]resource{
		client.Issues.Name():      bind(client.Issues),
		client.LostFound.Name():   bind(client.LostFound),
		client.Help.Name():        bind(client.Help),
		client.Feedback.Name():    bind(client.Feedback),
		client.Polls.Name():       bind(client.Polls.Resource),
		client.Confessions.Name(): bind(client.Confessions),
		client.Events.Name():      bind(client.Events.Resource),
	}
}

func lookupResource(client *campus.Client, name string) (resource, error) {
	all := resources(client)

	r, found := all[name]
	if !found {
		names := make([]string, 0, len(all))
		for n := range all {
			names = append(names, n)
		}
		slices.Sort(names)
		return resource{}, usagef("unknown resource %q: must be one of %s", name, strings.Join(names, ", "))
	}
	return r, nil
}

func runList(ctx context.Context, client *campus.Client, args []string) (any, error) {
	if len(args) != 1 {
		return nil, usagef("list takes a resource")
	}

	r, err := lookupResource(client, args[0])
	if err != nil {
		return nil, err
	}
	return r.list(ctx)
}

func runGet(ctx context.Context, client *campus.Client, args []string) (any, error) {
	if len(args) != 2 {
		return nil, usagef("get takes a resource and an id")
	}

	r, err := lookupResource(client, args[0])
	if err != nil {
		return nil, err
	}
	return r.get(ctx, args[1])
}

func runCreate(ctx context.Context, client *campus.Client, args []string) (any, error) {
	if len(args) != 2 {
		return nil, usagef("create takes a resource and a JSON document")
	}

	r, err := lookupResource(client, args[0])
	if err != nil {
		return nil, err
	}
	return r.create(ctx, args[1])
}

func runVote(ctx context.Context, client *campus.Client, args []string) (any, error) {
	if len(args) != 2 {
		return nil, usagef("vote takes a poll id and an option id")
	}

	return client.Polls.Vote(ctx, args[0], args[1])
}

func runRegister(ctx context.Context, client *campus.Client, args []string) (any, error) {
	if len(args) != 1 {
		return nil, usagef("register takes an event id")
	}

	return client.Events.Register(ctx, args[0])
}

// decodeArgument decodes a JSON document given inline, or read from stdin
// when input is "-". Unknown fields are rejected.
func decodeArgument(input string, v any) error {
	var data []byte
	if input == "-" {
		var err error
		data, err = io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("reading standard input: %w", err)
		}
	} else {
		data = []byte(input)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return usagef("invalid JSON document: %v", err)
	}
	return nil
}
