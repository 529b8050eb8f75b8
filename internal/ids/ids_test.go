package ids_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
)

func TestUserIDRoundTrip(t *testing.T) {
	id := ids.NewUserID()
	parsed, err := ids.ParseUserID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.False(t, id.IsZero())

	var zero ids.UserID
	assert.True(t, zero.IsZero())
}

func TestParseUserIDRejectsGarbage(t *testing.T) {
	_, err := ids.ParseUserID("not-a-uuid")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindInvalidArgument, appErr.Kind)
}

func TestNewEmail(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr bool
		want    string
	}{
		{"valid, lower-cased", "Alice@Example.com", false, "alice@example.com"},
		{"trims whitespace", "  bob@example.com  ", false, "bob@example.com"},
		{"empty", "", true, ""},
		{"no at sign", "not-an-email", true, ""},
		{"at sign at end", "alice@", true, ""},
		{"contains whitespace", "al ice@example.com", true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ids.NewEmail(tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestNewEmailTooLong(t *testing.T) {
	local := strings.Repeat("a", 250)
	_, err := ids.NewEmail(local + "@example.com")
	require.Error(t, err)
}

func TestNewUsername(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", "alice_92", false},
		{"too short", "ab", true},
		{"too long", strings.Repeat("a", 33), true},
		{"invalid character", "alice!", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ids.NewUsername(tc.raw)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNewMessageContent(t *testing.T) {
	_, err := ids.NewMessageContent("")
	require.Error(t, err)

	_, err = ids.NewMessageContent(strings.Repeat("x", ids.MaxMessageContentLength+1))
	require.Error(t, err)

	content, err := ids.NewMessageContent("  hello there  ")
	require.NoError(t, err)
	assert.Equal(t, "hello there", content.String())
}

func TestOrgPathAncestry(t *testing.T) {
	root := ids.OrgPath{"acme"}
	child := ids.OrgPath{"acme", "eng"}

	assert.True(t, root.IsAncestorOf(child))
	assert.False(t, child.IsAncestorOf(root))
	assert.False(t, root.IsAncestorOf(root))
	assert.True(t, child.Contains("eng"))
	assert.False(t, child.Contains("sales"))
	assert.Equal(t, "acme/eng", child.String())
}
