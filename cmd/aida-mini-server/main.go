package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/orizon-lang/aida/internal/a1"
	"github.com/orizon-lang/aida/internal/aida"
	"github.com/orizon-lang/aida/internal/cli"
	"github.com/orizon-lang/aida/internal/config"
	"github.com/orizon-lang/aida/internal/loop"
)

func main() {
	var (
		address  string
		cfgPath  string
		serve    bool
		debug    bool
		watchCfg bool
		version  bool
		jsonOut  bool
	)

	flag.StringVar(&address, "address", "inproc://aida-mini-server", "inproc address to bind")
	flag.StringVar(&cfgPath, "config", "", "path to config.toml (default $AIDA_CONFIG or ~/.config/aida/config.toml)")
	flag.BoolVar(&serve, "serve", false, "keep serving after the scenario until interrupted")
	flag.BoolVar(&debug, "debug", false, "enable ORB debug logging")
	flag.BoolVar(&watchCfg, "watch", false, "reload the config file when it changes")
	flag.BoolVar(&version, "version", false, "print version information and exit")
	flag.BoolVar(&jsonOut, "json", false, "print version information as JSON")
	flag.Parse()

	v := config.New(cfgPath)
	cfg, err := config.Decode(v)
	if err != nil {
		log.Fatalf("[aida-mini-server] %v", err)
	}
	cfg.Log.Debug = cfg.Log.Debug || debug
	if err := config.Apply(cfg); err != nil {
		log.Fatalf("[aida-mini-server] %v", err)
	}
	if version {
		cli.PrintVersion("aida-mini-server", jsonOut)
		return
	}
	if watchCfg {
		config.Watch(v, func(c config.Config) {
			c.Log.Debug = c.Log.Debug || debug
			if err := config.Apply(c); err != nil {
				log.Printf("[aida-mini-server] reload: %v", err)
				return
			}
			log.Printf("[aida-mini-server] configuration reloaded")
		})
	}

	if err := run(address, serve); err != nil {
		cli.ExitWithError("aida-mini-server: %v", err)
	}
}

func run(address string, serve bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := loop.New()
	if err != nil {
		return err
	}
	defer l.Close()

	srv := a1.NewMiniServer(l)
	conn, err := srv.Bind(address)
	if err != nil {
		return err
	}
	defer conn.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := l.Run(gctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer func() {
			if !serve {
				l.Quit()
			}
		}()
		return scenario(address)
	})
	return g.Wait()
}

// scenario connects a client and exercises the MiniServer properties.
func scenario(address string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scenario: %v", r)
		}
	}()

	c, err := aida.Connect(address)
	if err != nil {
		return err
	}
	defer c.Close()

	server, ok := a1.MiniServerFrom(c.RemoteOrigin())
	if !ok {
		return fmt.Errorf("%s does not serve A1::MiniServer", address)
	}
	server.Message("  CHECK  MiniServer remote call successful")

	params := aida.NewParameters(server.RemoteHandle)
	for _, p := range params {
		fmt.Printf("%-6s = %-12s label=%q hints=%q default=%q\n",
			p.FieldName(), p.Get().String(), p.GetAux("label"), p.GetAux("hints"), p.GetAux("default"))
	}

	vi32 := aida.FindParameter(params, "vi32")
	if vi32 == nil {
		return fmt.Errorf("vi32 parameter missing")
	}
	if !vi32.Set(aida.NewAny(-750)) {
		return fmt.Errorf("vi32 rejected -750")
	}
	if got := server.Vi32(); got != -750 {
		return fmt.Errorf("vi32 = %d, want -750", got)
	}
	server.SetCount(a1.THREE)
	fmt.Printf("vi32 = %d, count = %s\n", server.Vi32(), server.Count())
	server.Message("  CHECK  MiniServer property access")
	return nil
}
