package httpserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishnet-client/fishnet/internal/config"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, VerifyPassword("correct horse battery staple", hash))
	assert.False(t, VerifyPassword("wrong password", hash))
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	assert.False(t, VerifyPassword("anything", "not-a-valid-hash"))
	assert.False(t, VerifyPassword("anything", "argon2id$bad$format"))
}

func TestSessionManager_IssueAndValidate(t *testing.T) {
	sm := NewSessionManager(config.Config{AdminSessionSecret: "s3cr3t"})
	token := sm.IssueToken("alice", time.Minute)
	assert.True(t, sm.ValidateToken(token))
}

func TestSessionManager_RejectsExpired(t *testing.T) {
	sm := NewSessionManager(config.Config{AdminSessionSecret: "s3cr3t"})
	token := sm.IssueToken("alice", -time.Minute)
	assert.False(t, sm.ValidateToken(token))
}

func TestSessionManager_RejectsTamperedSignature(t *testing.T) {
	sm := NewSessionManager(config.Config{AdminSessionSecret: "s3cr3t"})
	token := sm.IssueToken("alice", time.Minute)
	assert.False(t, sm.ValidateToken(token+"x"))
}

func TestSessionManager_RejectsForeignSecret(t *testing.T) {
	sm1 := NewSessionManager(config.Config{AdminSessionSecret: "s3cr3t"})
	sm2 := NewSessionManager(config.Config{AdminSessionSecret: "different"})
	token := sm1.IssueToken("alice", time.Minute)
	assert.False(t, sm2.ValidateToken(token))
}
