package extraction

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/ZerkerEOD/krakenwifi/internal/models"
	"github.com/ZerkerEOD/krakenwifi/pkg/debug"
)

// extractTimeout bounds one tool invocation; captures are small and an
// extraction that takes minutes has hung.
const extractTimeout = 2 * time.Minute

// ToolExtractor produces attack-ready artifacts from raw captures by
// invoking hcxpcaptool.
type ToolExtractor struct {
	binaryPath string
}

// NewToolExtractor creates an extractor using the given tool binary.
func NewToolExtractor(binaryPath string) *ToolExtractor {
	return &ToolExtractor{binaryPath: binaryPath}
}

// Extract runs the extraction tool for the given capture, writing the
// artifact to artifactPath. An empty or missing output file means the
// capture held no usable material for the attack mode.
func (e *ToolExtractor) Extract(ctx context.Context, capturePath, artifactPath, attackMode, bssid string) error {
	var args []string
	switch attackMode {
	case models.AttackModePMKID:
		args = []string{"-z", artifactPath, capturePath}
	case models.AttackModeHandshake:
		args = []string{"-o", artifactPath, capturePath}
	default:
		return fmt.Errorf("unknown attack mode: %s", attackMode)
	}
	if bssid != "" {
		args = append(args, "--filtermac="+normalizeBSSID(bssid), "--filtermode=2")
	}

	runCtx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	debug.Info("Extracting %s material from %s", attackMode, capturePath)
	cmd := exec.CommandContext(runCtx, e.binaryPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("extraction tool failed: %w: %s", err, string(output))
	}

	info, err := os.Stat(artifactPath)
	if err != nil {
		return fmt.Errorf("capture %s contains no %s material", capturePath, attackMode)
	}
	if info.Size() == 0 {
		os.Remove(artifactPath)
		return fmt.Errorf("capture %s contains no %s material", capturePath, attackMode)
	}

	return nil
}

// normalizeBSSID strips separators, the tool wants bare hex.
func normalizeBSSID(bssid string) string {
	out := make([]byte, 0, 12)
	for i := 0; i < len(bssid); i++ {
		c := bssid[i]
		if c == ':' || c == '-' {
			continue
		}
		out = append(out, c)
	}
	return string(out)
}
