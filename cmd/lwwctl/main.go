package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/iotaledger/hive.go/ierrors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/raj/lww/pkg/tracing"
)

const usage = `usage: lwwctl [-server URL] [-as-of RFC3339] <command> [args]

commands:
  add <value>          record an add
  remove <value>       record a remove
  exists <value>       check membership
  list                 list present values
  state                dump the full replica state
  join <id> <addr> [http]
                       add a raft voter, optionally announcing its HTTP address`

func main() {
	server := flag.String("server", "http://127.0.0.1:18080", "agent base URL")
	asOf := flag.String("as-of", "", "RFC3339 instant for exists/list")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	req, err := buildRequest(*server, *asOf, flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	shutdown, _ := tracing.Init(context.Background(), nil)
	defer func() { _ = shutdown(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, span := otel.Tracer(tracing.TracerCLI).Start(ctx, tracing.SpanCLIRequest)
	span.SetAttributes(attribute.String("http.method", req.Method), attribute.String("http.url", req.URL.String()))
	defer span.End()

	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request failed:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	fmt.Println("status:", resp.Status)
	_, _ = io.Copy(os.Stdout, resp.Body)
	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

func buildRequest(server, asOf string, args []string) (*http.Request, error) {
	if len(args) == 0 {
		return nil, ierrors.New("missing command")
	}
	query := ""
	if asOf != "" {
		if _, err := time.Parse(time.RFC3339Nano, asOf); err != nil {
			return nil, ierrors.Wrap(err, "invalid -as-of")
		}
		query = "?asOf=" + url.QueryEscape(asOf)
	}

	element := func() (string, error) {
		if len(args) != 2 || args[1] == "" {
			return "", ierrors.Errorf("%s needs exactly one value", args[0])
		}
		return server + "/v1/elements/" + url.PathEscape(args[1]), nil
	}

	switch args[0] {
	case "add", "remove", "exists":
		target, err := element()
		if err != nil {
			return nil, err
		}
		method := map[string]string{"add": http.MethodPut, "remove": http.MethodDelete, "exists": http.MethodGet}[args[0]]
		if args[0] == "exists" {
			target += query
		}
		return http.NewRequest(method, target, nil)
	case "list":
		return http.NewRequest(http.MethodGet, server+"/v1/elements"+query, nil)
	case "state":
		return http.NewRequest(http.MethodGet, server+"/v1/state", nil)
	case "join":
		if len(args) != 3 && len(args) != 4 {
			return nil, ierrors.New("join needs <id> <addr> [http]")
		}
		body := map[string]string{"id": args[1], "addr": args[2]}
		if len(args) == 4 {
			body["http"] = args[3]
		}
		payload, _ := json.Marshal(body)
		req, err := http.NewRequest(http.MethodPost, server+"/raft/join", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	default:
		return nil, ierrors.Errorf("unknown command %q", args[0])
	}
}
