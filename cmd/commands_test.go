// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/cliprunner/internal/urlsigner"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, env := range []string{"AWS_REGION", "S3_BUCKET", "SNS_TOPIC_ARN", "VIDEO_DIR", "CLOUDFRONT_DOMAIN"} {
		t.Setenv(env, "")
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestQuarantineListAndPurge(t *testing.T) {
	isolateEnv(t)
	qdir := t.TempDir()
	t.Setenv("CLIPRUNNER_QUARANTINE_DIR", qdir)
	require.NoError(t, os.WriteFile(filepath.Join(qdir, "bad.mp4"), []byte("12345"), 0o644))

	out, _, err := execute(t, "quarantine", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "bad.mp4")
	assert.Contains(t, out, "5 of 104857600 bytes")

	out, _, err = execute(t, "quarantine", "purge")
	require.NoError(t, err)
	assert.Contains(t, out, qdir)

	entries, err := os.ReadDir(qdir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSignCommandWithKeyFile(t *testing.T) {
	isolateEnv(t)
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keyFile := filepath.Join(t.TempDir(), "key.pem")
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}), 0o600))

	t.Setenv("CLIPRUNNER_REGION", "ap-southeast-2")
	t.Setenv("CLIPRUNNER_SIGNING_DOMAIN", "d1.example.net")
	t.Setenv("CLIPRUNNER_SIGNING_KEY_PAIR_ID", "KTESTPAIR")
	t.Setenv("CLIPRUNNER_SIGNING_KEY_FILE", keyFile)

	out, stderr, err := execute(t, "sign", "videos/clip.mp4", "--verify")
	require.NoError(t, err)

	signed := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(signed, "https://d1.example.net/videos/clip.mp4?"))
	assert.Contains(t, stderr, "verified https://d1.example.net/videos/clip.mp4")

	v, err := urlsigner.Verify(signed, &key.PublicKey, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "KTESTPAIR", v.KeyPairID)
}

func TestSignCommandRequiresSigningConfig(t *testing.T) {
	isolateEnv(t)
	_, _, err := execute(t, "sign", "videos/clip.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing.domain")
}
