package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeHeaderFilename(t *testing.T) {
	assert.Equal(t, "report.pdf", SanitizeHeaderFilename("report.pdf"))
	assert.Equal(t, "evil.txt", SanitizeHeaderFilename("evil\r\n.txt"))
	assert.Equal(t, "namewith.quotes", SanitizeHeaderFilename(`name"with".quotes`))
	assert.Equal(t, "back.slash", SanitizeHeaderFilename(`back\.slash`))
	assert.Equal(t, "download", SanitizeHeaderFilename(""))
	assert.Equal(t, "download", SanitizeHeaderFilename("\r\n"))
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `inline; filename="cat.png"`, ContentDisposition("inline", "cat.png"))
	assert.Equal(t, `attachment; filename="a.txt"`, ContentDisposition("attachment", "a\r.txt"))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0 B", FormatBytes(0))
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KB", FormatBytes(1024))
	assert.Equal(t, "1.5 MB", FormatBytes(1536*1024))
	assert.Equal(t, "2.0 GB", FormatBytes(2*1024*1024*1024))
}

func TestTokenRoundTrip(t *testing.T) {
	secret := "test-secret"
	token, err := GenerateToken(secret, "ci-uploader", []string{PermUpload, PermMetadata}, time.Hour)
	require.NoError(t, err)

	claims, err := VerifyToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "ci-uploader", claims.Identity)
	assert.True(t, claims.HasPermission(PermUpload))
	assert.True(t, claims.HasPermission(PermMetadata))
	assert.False(t, claims.HasPermission(PermDownload))
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("right", "x", nil, time.Hour)
	require.NoError(t, err)

	_, err = VerifyToken("wrong", token)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	token, err := GenerateToken("s", "x", nil, -time.Minute)
	require.NoError(t, err)

	_, err = VerifyToken("s", token)
	assert.Error(t, err)
}
