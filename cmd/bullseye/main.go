// Command bullseye runs the sprite compositing pipeline: reconciles the
// replacement collection, separates badge overlays, composites every
// asset into the output collection and packages the result as a .mod.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"badc0de.net/pkg/flagutil/v1"

	"github.com/common-nighthawk/go-figure"
	"github.com/golang/glog"

	_ "golang.org/x/net/trace"

	"badc0de.net/pkg/go-bullseye/config"
	"badc0de.net/pkg/go-bullseye/imgcache"
	"badc0de.net/pkg/go-bullseye/modpack"
	"badc0de.net/pkg/go-bullseye/paths"
	"badc0de.net/pkg/go-bullseye/pipeline"
	"badc0de.net/pkg/go-bullseye/scaletab"
	"badc0de.net/pkg/go-bullseye/web"
)

var (
	configPath = flag.String("config", "bullseye.toml", "path to the TOML job configuration")

	badgeDir  = flag.String("badge_dir", "", "override the configured badge collection directory")
	spriteDir = flag.String("sprite_dir", "", "override the configured replacement collection directory")
	outputDir = flag.String("output_dir", "", "override the configured output directory")

	limitRange = flag.String("limit_range", "", "limit processing to a number range, e.g. 1-151")

	modOut   = flag.String("mod_out", "", "path of the .mod to build (default: <output_dir>.mod)")
	skipPack = flag.Bool("skip_pack", false, "skip building the .mod archive")

	listenAddress  = flag.String("listen_address", "", "if set, serve the output collection preview here after the run")
	debugWebServer = flag.String("debug_web_server_listen_address", "", "where the debug server will listen")

	templatePath string
)

func main() {
	paths.SetupFilePathFlag(modpack.TemplateName, "template_path", &templatePath)
	flagutil.Parse()
	figure.NewFigure("bullseye", "", true).Print()

	if *debugWebServer != "" {
		http.HandleFunc("/debug/minimetrics", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "runtime.NumGoroutine(): %d\n", runtime.NumGoroutine())
		})
		go http.ListenAndServe(*debugWebServer, nil)
	}

	cfg, err := loadConfig()
	if err != nil {
		glog.Exitf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	events := make(chan pipeline.Event, 256)
	go consumeEvents(events)

	summary, err := pipeline.Run(ctx, cfg, events)
	printSummary(summary)
	if err != nil {
		glog.Exitf("pipeline failed: %v", err)
	}

	if !*skipPack {
		if err := buildMod(cfg); err != nil {
			glog.Exitf("packaging failed: %v", err)
		}
	}

	if *listenAddress != "" {
		h := web.NewHandler(cfg.OutputDir, imgcache.New(0))
		h.SetSummary(summary)
		if err := web.ListenAndServe(*listenAddress, h); err != nil {
			glog.Exitf("preview server failed: %v", err)
		}
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, err
	}
	if *badgeDir != "" {
		cfg.BadgeDir = *badgeDir
	}
	if *spriteDir != "" {
		cfg.SpriteDir = *spriteDir
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *limitRange != "" {
		min, max, err := parseRange(*limitRange)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Range = config.Range{Min: min, Max: max}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func parseRange(s string) (min, max int, err error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("could not parse range %q: want MIN-MAX", s)
	}
	if min, err = strconv.Atoi(lo); err != nil {
		return 0, 0, fmt.Errorf("could not parse range %q: %v", s, err)
	}
	if max, err = strconv.Atoi(hi); err != nil {
		return 0, 0, fmt.Errorf("could not parse range %q: %v", s, err)
	}
	return min, max, nil
}

func consumeEvents(events <-chan pipeline.Event) {
	for e := range events {
		switch e := e.(type) {
		case pipeline.PhaseProgress:
			glog.V(1).Infof("%s: %d/%d", e.Phase, e.Done, e.Total)
		case pipeline.AssetDone:
			glog.V(1).Infof("done: %v -> %s", e.Key, e.Path)
		}
	}
}

func printSummary(s pipeline.Summary) {
	fmt.Printf("\ncomposited: %d\nskipped:    %d\nduplicates: %d\n", s.Composited, s.Skipped, s.Duplicates)
	if s.Failures() > 0 {
		kinds := make([]string, 0, len(s.Failed))
		for k := range s.Failed {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		fmt.Printf("failed:     %d\n", s.Failures())
		for _, k := range kinds {
			fmt.Printf("  %-8s %d\n", k, s.Failed[k])
		}
	}
	if len(s.Issues) > 0 {
		fmt.Printf("issues:     %d (see log for details)\n", len(s.Issues))
		for _, iss := range s.Issues {
			glog.Infof("issue: %v %v %s %s", iss.Kind, iss.Keys, iss.Name, iss.Detail)
		}
	}
}

func buildMod(cfg config.Config) error {
	modPath := *modOut
	if modPath == "" {
		modPath = strings.TrimSuffix(cfg.OutputDir, "/") + ".mod"
	}

	// Overrides target the summary table; in-battle front/back scales
	// stay uniform.
	tables := modpack.Tables{
		Summary: scaletab.Table{Default: cfg.Scaling.Summary, Overrides: cfg.Scaling.OverridesByNumber()},
		Front:   scaletab.Table{Default: cfg.Scaling.Front},
		Back:    scaletab.Table{Default: cfg.Scaling.Back},
	}
	meta := modpack.Meta{
		Name:        cfg.Mod.Name,
		Version:     cfg.Mod.Version,
		Author:      strings.Join(cfg.Mod.Authors, ", "),
		Description: cfg.Mod.Description,
	}
	return modpack.Build(cfg.OutputDir, modPath, templatePath, meta, tables)
}
