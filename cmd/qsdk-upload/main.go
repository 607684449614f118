// Command qsdk-upload is a thin example driver over uploader.Uploader,
// in the style of the teacher's single-purpose cmd subcommands
// (authorize, copyurl, touch): parse flags, build one library call,
// report the result.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/qiniu/go-sdk-core/backoff"
	"github.com/qiniu/go-sdk-core/chooser"
	"github.com/qiniu/go-sdk-core/config"
	"github.com/qiniu/go-sdk-core/endpoint"
	"github.com/qiniu/go-sdk-core/httpclient"
	"github.com/qiniu/go-sdk-core/resolver"
	"github.com/qiniu/go-sdk-core/retrier"
	"github.com/qiniu/go-sdk-core/uploader"
	"github.com/qiniu/go-sdk-core/uploader/recorder"
	"github.com/qiniu/go-sdk-core/uploader/source"
	"github.com/qiniu/go-sdk-core/uploader/uploadv1"
	"github.com/qiniu/go-sdk-core/uploader/uploadv2"
)

var (
	flagHost        string
	flagBucket      string
	flagKey         string
	flagToken       string
	flagProtocol    string
	flagRecorderDir string
	flagConcurrency int

	rootCmd = &cobra.Command{
		Use:   "qsdk-upload <file>",
		Short: "Upload a file to Qiniu object storage using go-sdk-core",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpload,
	}
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagHost, "host", "", "upload endpoint host:port (required)")
	flags.StringVar(&flagBucket, "bucket", "", "target bucket (v2 protocol only)")
	flags.StringVar(&flagKey, "key", "", "object key")
	flags.StringVar(&flagToken, "token", "", "upload token (v1 protocol only)")
	flags.StringVar(&flagProtocol, "protocol", "v2", "upload protocol: v1 or v2")
	flags.StringVar(&flagRecorderDir, "recorder-dir", "", "directory for resumable upload records; empty disables resume")
	flags.IntVar(&flagConcurrency, "concurrency", 4, "number of concurrent part uploads")
	_ = rootCmd.MarkFlagRequired("host")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("qsdk-upload: %v", err))
		os.Exit(1)
	}
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]
	src, err := source.NewFile(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	cfg := config.New(config.WithConcurrency(flagConcurrency))
	exec, err := buildExecutor(cfg)
	if err != nil {
		return err
	}

	rec := recorder.Recorder(recorder.Dummy{})
	if flagRecorderDir != "" {
		fsRec, err := recorder.NewFS(flagRecorderDir)
		if err != nil {
			return fmt.Errorf("recorder: %w", err)
		}
		rec = fsRec
	}

	protocol, err := buildProtocol(exec)
	if err != nil {
		return err
	}

	total, _ := src.TotalSize()
	bar := progressbar.DefaultBytes(total, "uploading")
	isTerminal := isatty.IsTerminal(os.Stdout.Fd())

	mgr := &uploader.UploadManager{
		Protocol:    protocol,
		Recorder:    rec,
		Scheduler:   uploader.Concurrent{},
		Partition:   uploader.LimitedPartition{Inner: uploader.FixedPartition{Size: cfg.PartSize}, Min: 1 << 20, Max: 64 << 20},
		Concurrency: uploader.FixedConcurrency{N: cfg.Concurrency},
		PartTTL:     cfg.UploadedPartTTL,
	}

	callbacks := uploader.Callbacks{
		OnPartUploaded: func(p uploader.UploadedPart) {
			bar.Add64(p.Size)
		},
		OnResumed: func(p uploader.UploadedPart) {
			bar.Add64(p.Size)
			if isTerminal {
				fmt.Fprintln(os.Stderr, color.YellowString("resumed part %d from a previous run", p.PartNumber))
			}
		},
	}
	up := mgr.NewUploader(src, callbacks)

	result, err := up.Upload(cmd.Context(), uploader.ObjectParams{
		Bucket:   flagBucket,
		Key:      flagKey,
		FileName: flagKey,
	})
	bar.Finish()
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	if isTerminal {
		fmt.Println(color.GreenString("upload complete: %s", result))
	} else {
		fmt.Println(string(result))
	}
	return nil
}

// buildExecutor wires C1-C6 around the single configured host, exactly
// as spec §4.5 describes: resolve, choose, retry-classify, back off,
// call.
func buildExecutor(cfg *config.Config) (*httpclient.Executor, error) {
	ep, err := endpoint.ParseEndpoint(flagHost)
	if err != nil {
		return nil, fmt.Errorf("invalid --host: %w", err)
	}

	ipChooser := chooser.NewIPChooser(chooser.Config{
		BlockDuration:  cfg.ChooserBlockDuration,
		ShrinkInterval: cfg.ChooserShrinkInterval,
		ShrinkSize:     100,
	})

	return &httpclient.Executor{
		Endpoints: endpoint.Static{Preferred: []endpoint.Endpoint{ep}},
		Service:   endpoint.ServiceUpload,
		Resolver:  resolver.System{},
		Chooser:   chooser.NeverEmptyHanded{Inner: ipChooser},
		Retrier:   retrier.LimitedRetrier{Inner: retrier.ErrorRetrier{}, MaxRetriesPerEndpoint: cfg.MaxRetriesPerEndpoint, MaxTotalRetries: cfg.MaxRetriesTotal},
		Backoff:   backoff.Exponential{Base: cfg.BackoffBase},
		Caller:    httpclient.DefaultCaller{Client: &http.Client{Timeout: cfg.RequestTimeout}},
		UseHTTPS:  cfg.UseHTTPS,
	}, nil
}

func buildProtocol(exec *httpclient.Executor) (uploader.Protocol, error) {
	switch flagProtocol {
	case "v1":
		if flagToken == "" {
			return nil, fmt.Errorf("--token is required for --protocol=v1")
		}
		return &uploader.ProtocolV1{
			Uploader: &uploadv1.Uploader{Exec: exec},
			Token:    staticUpToken(flagToken),
		}, nil
	case "v2":
		if flagBucket == "" {
			return nil, fmt.Errorf("--bucket is required for --protocol=v2")
		}
		return &uploader.ProtocolV2{Uploader: &uploadv2.Uploader{Exec: exec}}, nil
	default:
		return nil, fmt.Errorf("unknown --protocol %q, want v1 or v2", flagProtocol)
	}
}

type staticUpToken string

func (t staticUpToken) UpToken(context.Context) (string, error) { return string(t), nil }

var _ httpclient.UpTokenProvider = staticUpToken("")
