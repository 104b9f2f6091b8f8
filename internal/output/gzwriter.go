package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// FileNameFor returns the output file name for datestamp: the event-record
// shape writes "synthetic_enroll.log-YYYYMMDD.gz", the tuple shape writes
// "synthetic_enroll-YYYYMMDD.tsv.gz".
func FileNameFor(datestamp string, eventOutput bool) string {
	compact := compactDatestamp(datestamp)
	if eventOutput {
		return fmt.Sprintf("synthetic_enroll.log-%s.gz", compact)
	}
	return fmt.Sprintf("synthetic_enroll-%s.tsv.gz", compact)
}

func compactDatestamp(datestamp string) string {
	out := make([]byte, 0, 8)
	for i := 0; i < len(datestamp); i++ {
		if datestamp[i] != '-' {
			out = append(out, datestamp[i])
		}
	}
	return string(out)
}

// WriteDay gzip-compresses every payload filed under datestamp into
// outputDir/FileNameFor(datestamp, eventOutput), one payload per line, using
// klauspost/compress in place of the standard library's gzip for its faster
// implementation, matching the rest of the stack's output-path compression.
func WriteDay(b *Bucket, outputDir, datestamp string, eventOutput bool) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(outputDir, FileNameFor(datestamp, eventOutput))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)

	for _, payload := range b.Payloads(datestamp) {
		if _, err := gw.Write(payload); err != nil {
			return "", fmt.Errorf("write gzip payload: %w", err)
		}
		if _, err := gw.Write([]byte("\n")); err != nil {
			return "", fmt.Errorf("write gzip payload: %w", err)
		}
	}

	if err := gw.Close(); err != nil {
		return "", fmt.Errorf("close gzip writer: %w", err)
	}

	return path, nil
}
