package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"doc-verifier/internal/service"
	"doc-verifier/pkg/auth"
	"doc-verifier/pkg/config"
	"doc-verifier/pkg/logger"

	"go.uber.org/zap"
)

// diro-probe runs a single document through the DIRO extraction endpoint and
// prints what the widget would show on its review screen. It can also mint a
// widget token for local testing of the API.
func main() {
	filePath := flag.String("file", "", "document to extract")
	commit := flag.Bool("commit", false, "commit the extracted document when a docid is returned")
	tokenSubject := flag.String("issue-token", "", "print a widget token for this subject and exit")
	tokenRef := flag.String("token-ref", "", "reference claim for -issue-token")
	tokenTTL := flag.Duration("token-ttl", time.Hour, "lifetime of the issued token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *tokenSubject != "" {
		if cfg.Auth.WidgetTokenSecret == "" {
			log.Fatal("WIDGET_TOKEN_SECRET is not set")
		}
		token, err := auth.NewTokenVerifier(cfg.Auth.WidgetTokenSecret).Issue(*tokenSubject, *tokenRef, *tokenTTL)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	if *filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	appLogger, err := logger.New(cfg.Logger.Level, true)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	for _, w := range cfg.Warnings() {
		appLogger.Warn("Configuration incomplete", zap.String("detail", w))
	}

	content, err := os.ReadFile(*filePath)
	if err != nil {
		appLogger.Fatal("Failed to read file", zap.Error(err))
	}

	ref, err := service.NewFileService(&cfg.Widget, appLogger).Inspect(*filePath, content)
	if err != nil {
		appLogger.Fatal("File rejected", zap.Error(err))
	}
	appLogger.Info("File accepted",
		zap.String("name", ref.Name),
		zap.String("mime_type", ref.MimeType),
		zap.Int("pages", ref.PageCount),
		zap.String("fingerprint", ref.Fingerprint),
	)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Diro.Timeout)
	defer cancel()

	client := service.NewDiroClient(&cfg.Diro, nil, appLogger)
	result, err := client.ExtractDocument(ctx, *ref, content)
	if err != nil {
		appLogger.Fatal("Extraction failed", zap.Error(err))
	}
	if result == nil {
		fmt.Println("No payload yet; the widget would keep waiting.")
		return
	}
	if result.IsUnprocessable() {
		fmt.Println("Document is unprocessable.")
		return
	}

	reconciled := service.Reconcile(result, cfg.Widget.PeriodRange)
	fmt.Printf("Document type: %s\n", result.DocumentType)
	fmt.Printf("Document ID:   %s\n", result.DocID)
	for _, f := range reconciled.Fields {
		mark := "missing"
		if f.Validated {
			mark = "ok"
		}
		fmt.Printf("  %-15s %s\n", f.Name, mark)
	}
	if v := reconciled.DisplayValues.AccountMasked; v != "" {
		fmt.Printf("Account:       %s\n", v)
	}
	if v := reconciled.DisplayValues.PeriodLabel; v != "" {
		fmt.Printf("Period:        %s\n", v)
	}
	if len(reconciled.Notices) > 0 {
		fmt.Printf("Notices:       %s\n", strings.Join(reconciled.Notices, " "))
	}

	if !*commit {
		return
	}
	if result.DocID == "" {
		appLogger.Fatal("Cannot commit without a docid")
	}
	commitResult, err := client.CommitDocument(ctx, result.DocID)
	if err != nil {
		appLogger.Fatal("Commit failed", zap.Error(err))
	}
	if !commitResult.OK {
		fmt.Printf("Commit rejected: %s\n", commitResult.Message)
		os.Exit(1)
	}
	fmt.Printf("Committed: %s\n", commitResult.Message)
}
