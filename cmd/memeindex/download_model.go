package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knights-analytics/hugot"
	"github.com/spf13/cobra"
)

func downloadModelCmd() *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "download-model [dest]",
		Short: "Download the built-in embedding model",
		Long: `Download the ONNX sentence-transformers model used by the built-in embedder.

dest defaults to EMBEDDING_MODEL_DIR ({data_dir}/models).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dest := cfg.EmbeddingModelDir()
			if len(args) == 1 {
				dest = args[0]
			}
			if model == "" {
				model = cfg.EmbeddingModel()
			}
			return downloadModel(cmd, model, dest)
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Hugging Face model (default: EMBEDDING_MODEL)")

	return cmd
}

func downloadModel(cmd *cobra.Command, model, dest string) error {
	out := cmd.OutOrStdout()

	matches, _ := filepath.Glob(filepath.Join(dest, "*", "tokenizer.json"))
	if len(matches) > 0 {
		_, _ = fmt.Fprintf(out, "Model already present at %s\n", filepath.Dir(matches[0]))
		return nil
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	_, _ = fmt.Fprintf(out, "Downloading %s to %s...\n", model, dest)
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = "onnx/model.onnx"
	path, err := hugot.DownloadModel(model, dest, opts)
	if err != nil {
		return fmt.Errorf("download model: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Model ready at %s\n", path)
	return nil
}

