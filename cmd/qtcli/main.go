package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"qtcache/internal/config"
	marketpersist "qtcache/internal/persistence/market"
	"qtcache/internal/svc"
	"qtcache/pkg/market"
	"qtcache/pkg/market/exchanges/questrade"
)

const usage = `usage: qtcli [-f config] <command> [flags] [args]

commands:
  symbol <SYMBOL>        fetch one symbol record (-policy prefer|force|cache)
  symbols                list every stored symbol
  import <FILE>          import symbols from a delimited file with a Symbol column
  candles <SYMBOL>       fetch bars for a range (-interval, -start, -end)
  sync <SYMBOL>          incrementally sync one symbol (-interval)
  sync-all               sync every stored symbol (-interval, -backup)
  latest <SYMBOL>        print the latest cached close
  export                 write the candle snapshot to parquet (-dir)
  forecast               write the forecast dataset to parquet (-dir, -update)
  backup                 copy the database into the backup directory
  accounts               list brokerage accounts
  time                   print the server time
`

func fatalf(format string, args ...interface{}) {
	logx.Errorf(format, args...)
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("encode output: %v", err)
	}
}

func main() {
	configPath := flag.String("f", "etc/qtcache.yaml", "the config file")
	verbose := flag.Bool("v", false, "log info messages to stdout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	level := "error"
	if *verbose {
		level = "info"
	}
	logx.MustSetup(logx.LogConf{Level: level, Encoding: "plain"})
	logx.DisableStat()
	sqlx.DisableStmtLog()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, *cfg)
	if err != nil {
		fatalf("build service context: %v", err)
	}
	defer func() { _ = sc.Close() }()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if err := run(ctx, sc, cmd, args); err != nil {
		_ = sc.Close()
		fatalf("%s: %v", cmd, err)
	}
}

func run(ctx context.Context, sc *svc.ServiceContext, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	interval := fs.String("interval", string(sc.Config.SyncInterval()), "bar interval")

	switch cmd {
	case "symbol":
		policyRaw := fs.String("policy", "prefer", "prefer, force or cache")
		symbol := parseOne(fs, args, "SYMBOL")
		policy, err := marketpersist.ParsePolicy(*policyRaw)
		if err != nil {
			return err
		}
		rec, err := sc.Symbols.Get(ctx, symbol, policy)
		if err != nil {
			return err
		}
		printJSON(rec)

	case "symbols":
		_ = fs.Parse(args)
		records, err := sc.Symbols.GetAll(ctx)
		if err != nil {
			return err
		}
		for _, rec := range records {
			fmt.Printf("%-10s %-10d %-8s %s\n", rec.Symbol, rec.SymbolID, rec.Currency, rec.Description)
		}
		fmt.Printf("%d symbols\n", len(records))

	case "import":
		path := parseOne(fs, args, "FILE")
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := sc.Symbols.ImportFromSource(ctx, f)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d symbols from %s\n", n, path)

	case "candles":
		startRaw := fs.String("start", "", "RFC 3339 start (default: 30 days ago)")
		endRaw := fs.String("end", "", "RFC 3339 end (default: now)")
		symbol := parseOne(fs, args, "SYMBOL")
		iv, err := market.ParseInterval(*interval)
		if err != nil {
			return err
		}
		end := time.Now().UTC()
		if *endRaw != "" {
			if end, err = time.Parse(time.RFC3339, *endRaw); err != nil {
				return fmt.Errorf("-end: %w", err)
			}
		}
		start := end.AddDate(0, 0, -30)
		if *startRaw != "" {
			if start, err = time.Parse(time.RFC3339, *startRaw); err != nil {
				return fmt.Errorf("-start: %w", err)
			}
		}
		candles, err := sc.Candles.FetchRange(ctx, symbol, iv, start, end)
		if err != nil {
			return err
		}
		for _, c := range candles {
			fmt.Printf("%s  o=%.4f h=%.4f l=%.4f c=%.4f v=%.0f\n",
				c.Start.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, c.Volume)
		}
		fmt.Printf("%d candles\n", len(candles))

	case "sync":
		symbol := parseOne(fs, args, "SYMBOL")
		iv, err := market.ParseInterval(*interval)
		if err != nil {
			return err
		}
		res, err := sc.Candles.SyncSymbol(ctx, symbol, iv)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s fetched=%d inserted=%d updated=%d cursor=%s\n",
			res.Symbol, iv, res.Fetched, res.Inserted, res.Updated, res.CursorAfter.Format(time.RFC3339))

	case "sync-all":
		backup := fs.Bool("backup", sc.Config.Sync.Backup, "back up the database before syncing")
		_ = fs.Parse(args)
		iv, err := market.ParseInterval(*interval)
		if err != nil {
			return err
		}
		report, err := sc.Candles.SyncAll(ctx, iv, *backup)
		if report != nil {
			for _, res := range report.Results {
				status := "ok"
				if res.Err != nil {
					status = res.Err.Error()
				}
				fmt.Printf("%-10s inserted=%d updated=%d %s\n", res.Symbol, res.Inserted, res.Updated, status)
			}
			fmt.Printf("sweep %s: succeeded=%d failed=%d backup=%s journal=%s\n",
				report.SweepID, report.Succeeded, report.Failed, report.BackupPath, report.JournalPath)
		}
		return err

	case "latest":
		symbol := parseOne(fs, args, "SYMBOL")
		price, err := sc.Candles.LatestPrice(ctx, symbol)
		if err != nil {
			return err
		}
		fmt.Printf("%s %.4f\n", market.NormalizeSymbol(symbol), price)

	case "export":
		dir := fs.String("dir", sc.ExportDir(), "output directory")
		_ = fs.Parse(args)
		path, err := sc.Candles.ExportParquet(ctx, *dir, time.Now())
		if err != nil {
			return err
		}
		fmt.Println(path)

	case "forecast":
		dir := fs.String("dir", sc.ExportDir(), "output directory")
		update := fs.Bool("update", false, "sync every symbol at the forecast interval first")
		_ = fs.Parse(args)
		ds, err := sc.Candles.PrepareForecastDataset(ctx, *update)
		if err != nil {
			return err
		}
		path := marketpersist.ForecastPath(*dir, time.Now())
		if err := ds.WriteParquet(path); err != nil {
			return err
		}
		fmt.Printf("%s items=%d rows=%d dropped=%s\n", path, len(ds.Items), len(ds.Rows), strings.Join(ds.Dropped, ","))

	case "backup":
		_ = fs.Parse(args)
		path, err := sc.Engine.Backup(ctx, sc.Config.DataFile(sc.Config.Export.BackupDir), time.Now())
		if err != nil {
			return err
		}
		fmt.Println(path)

	case "accounts":
		_ = fs.Parse(args)
		client, err := questradeClient(sc)
		if err != nil {
			return err
		}
		resp, err := client.Accounts(ctx)
		if err != nil {
			return err
		}
		printJSON(resp)

	case "time":
		_ = fs.Parse(args)
		client, err := questradeClient(sc)
		if err != nil {
			return err
		}
		ts, err := client.ServerTime(ctx)
		if err != nil {
			return err
		}
		fmt.Println(ts.Format(time.RFC3339Nano))

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func parseOne(fs *flag.FlagSet, args []string, name string) string {
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fatalf("%s: expected exactly one %s argument", fs.Name(), name)
	}
	return fs.Arg(0)
}

func questradeClient(sc *svc.ServiceContext) (*questrade.Client, error) {
	provider, ok := sc.Gateway.(*questrade.Provider)
	if !ok {
		return nil, fmt.Errorf("default gateway %T is not a questrade provider", sc.Gateway)
	}
	return provider.Client(), nil
}
