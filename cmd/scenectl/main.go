package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/manpreetbhatti/showroom/internal/catalog"
	"github.com/manpreetbhatti/showroom/internal/coords"
	"github.com/manpreetbhatti/showroom/internal/logging"
	"github.com/manpreetbhatti/showroom/internal/reconcile"
	"github.com/manpreetbhatti/showroom/internal/wsclient"
)

const ScenectlVersion = "0.1.0"

func main() {
	usage := `Showroom scene control.

The default api url is http://localhost:8080

Usage:
    scenectl stores [--api_url=<api_url>]
    scenectl store [--api_url=<api_url>] <store_id>
    scenectl move [--api_url=<api_url>] [--timeout=<timeout>] <store_id> <model_id> <x> <y>
    scenectl watch [--api_url=<api_url>] [--no_color] <store_id>

Options:
    -h --help                Show this screen.
    --version                Show version.
    --api_url=<api_url>      Showroom server base url.
    --timeout=<timeout>      How long to wait for a seat and persistence [default: 10s].
    --no_color               Plain output.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], ScenectlVersion)
	if err != nil {
		panic(err)
	}

	logging.Init("scenectl", "warn", true)

	apiURL, _ := opts.String("--api_url")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	var runErr error
	if stores_, _ := opts.Bool("stores"); stores_ {
		runErr = listStores(apiURL)
	} else if store_, _ := opts.Bool("store"); store_ {
		runErr = showStore(apiURL, opts)
	} else if move_, _ := opts.Bool("move"); move_ {
		runErr = moveModel(apiURL, opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		runErr = watchStore(apiURL, opts)
	}

	if runErr != nil {
		fmt.Fprintln(os.Stderr, "error:", runErr)
		os.Exit(1)
	}
}

func listStores(apiURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stores, err := catalog.NewClient(apiURL, nil).FetchStores(ctx)
	if err != nil {
		return err
	}
	renderStores(os.Stdout, stores)
	return nil
}

func showStore(apiURL string, opts docopt.Opts) error {
	storeID, _ := opts.String("<store_id>")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := catalog.NewClient(apiURL, nil).FetchStore(ctx, storeID)
	if catalog.IsNotFound(err) {
		return fmt.Errorf("store %s not found", storeID)
	}
	if err != nil {
		return err
	}
	renderStore(os.Stdout, *store)
	return nil
}

// Joins the room like any participant, moves one model and waits for the
// catalog to accept or roll back the edit.
func moveModel(apiURL string, opts docopt.Opts) error {
	storeID, _ := opts.String("<store_id>")
	modelID, _ := opts.String("<model_id>")
	pos, err := parsePosition(opts)
	if err != nil {
		return err
	}
	timeoutStr, _ := opts.String("--timeout")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return fmt.Errorf("invalid timeout %q: %w", timeoutStr, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	r, conn, err := connect(ctx, apiURL, storeID, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := r.Ready(ctx); err != nil {
		if errors.Is(err, reconcile.ErrAccessDenied) {
			return fmt.Errorf("store %s is full", storeID)
		}
		return err
	}

	if err := r.Move(modelID, pos); err != nil {
		return err
	}
	r.Close()
	r.Leave()

	m, _ := r.View().Model(modelID)
	if m.Position != coords.Clamp(pos) {
		return fmt.Errorf("move of %s was rolled back to (%.3f, %.3f)", modelID, m.Position.X, m.Position.Y)
	}
	fmt.Printf("%s moved to (%.3f, %.3f)\n", modelID, m.Position.X, m.Position.Y)
	return nil
}

func watchStore(apiURL string, opts docopt.Opts) error {
	storeID, _ := opts.String("<store_id>")
	noColor, _ := opts.Bool("--no_color")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printer := newEventPrinter(os.Stdout, !noColor)
	r, conn, err := connect(ctx, apiURL, storeID, printer)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := r.Ready(ctx); err != nil {
		if errors.Is(err, reconcile.ErrAccessDenied) {
			return fmt.Errorf("store %s is full", storeID)
		}
		return err
	}

	select {
	case <-ctx.Done():
		r.Leave()
	case <-conn.Done():
		return errors.New("connection lost")
	}
	return nil
}

// Loads the store, dials the room transport and asks for a seat. With a
// printer, inbound frames are shown before the reconciler applies them.
func connect(ctx context.Context, apiURL, storeID string, printer *eventPrinter) (*reconcile.Reconciler, *wsclient.Conn, error) {
	endpoint, err := wsclient.URL(apiURL)
	if err != nil {
		return nil, nil, err
	}
	conn, err := wsclient.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, nil, err
	}

	r := reconcile.New(reconcile.Config{
		StoreID: storeID,
		Catalog: catalog.NewClient(apiURL, nil),
		Emitter: conn,
	})
	if err := r.Load(ctx); err != nil {
		conn.Close()
		return nil, nil, err
	}

	var h wsclient.Handler = r
	if printer != nil {
		h = printer.wrap(r)
	}
	conn.Serve(h)

	if err := r.Join(); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return r, conn, nil
}

func parsePosition(opts docopt.Opts) (coords.Position, error) {
	xs, _ := opts.String("<x>")
	ys, _ := opts.String("<y>")
	x, err := strconv.ParseFloat(xs, 64)
	if err != nil {
		return coords.Position{}, fmt.Errorf("invalid x %q", xs)
	}
	y, err := strconv.ParseFloat(ys, 64)
	if err != nil {
		return coords.Position{}, fmt.Errorf("invalid y %q", ys)
	}
	pos := coords.Position{X: x, Y: y}
	if !coords.InRange(pos) {
		return coords.Position{}, fmt.Errorf("position (%g, %g) is outside [0,1]", x, y)
	}
	return pos, nil
}
