package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ClauseFileName is the on-disk name of a clause's raw narration:
// {section_idx}_{section_name}_{clause_idx}.wav
func ClauseFileName(sectionIdx int, sectionName string, clauseIdx int) string {
	return fmt.Sprintf("%d_%s_%d.wav", sectionIdx, sectionName, clauseIdx)
}

// ResolveFile finds a clause recording on disk.
// Priority: 1) rawDir/name  2) audioDir/name  3) a file in rawDir with the
// same stem and a case-insensitive .wav extension
func ResolveFile(audioDir, rawDir, name string) string {
	if name == "" {
		return ""
	}

	// 1) canonical location
	if rawDir != "" {
		full := filepath.Join(rawDir, name)
		if _, err := os.Stat(full); err == nil {
			return full
		}
	}

	// 2) flat layout directly under the audio dir
	if audioDir != "" {
		full := filepath.Join(audioDir, name)
		if _, err := os.Stat(full); err == nil {
			return full
		}
	}

	// 3) e.g. 0_intro_0.WAV written by another tool
	if rawDir != "" {
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		entries, err := os.ReadDir(rawDir)
		if err != nil {
			return ""
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			n := e.Name()
			if strings.TrimSuffix(n, filepath.Ext(n)) == stem && strings.EqualFold(filepath.Ext(n), ".wav") {
				return filepath.Join(rawDir, n)
			}
		}
	}

	return ""
}
