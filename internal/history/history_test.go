package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gig-copilot/internal/attachment"
)

func file(id string) attachment.FileRef {
	return attachment.FileRef{
		URI:      "https://generativelanguage.googleapis.com/v1beta/files/" + id,
		MimeType: "application/pdf",
	}
}

func TestConversationFileIDs(t *testing.T) {
	c := NewConversation()
	c.Append(NewTurn(RoleUser, "see attached", file("aaaa1111"), file("bbbb2222")))
	c.Append(NewTurn(RoleModel, "thanks"))
	c.Append(NewTurn(RoleUser, "and this", file("cccc3333")))

	assert.Equal(t, []string{"aaaa1111", "bbbb2222", "cccc3333"}, c.FileIDs())
	assert.Equal(t, 3, c.Len())
}

func TestConversationRemoveFile(t *testing.T) {
	c := NewConversation()
	c.Append(NewTurn(RoleUser, "one", file("aaaa1111")))
	c.Append(NewTurn(RoleUser, "", file("aaaa1111")))
	c.Append(NewTurn(RoleModel, "ok"))

	assert.Equal(t, 2, c.RemoveFile("aaaa1111"))
	assert.Empty(t, c.FileIDs())
	assert.Equal(t, 2, c.Len(), "turn left without parts is dropped")
	assert.Equal(t, "one", c.Turns()[0].Text())
}

func TestConversationSnapshotRestore(t *testing.T) {
	c := NewConversation()
	c.Append(NewTurn(RoleUser, "hi", file("aaaa1111")))
	c.Append(NewTurn(RoleModel, "hello"))

	snap := c.Snapshot()
	assert.Equal(t, 1, c.StripFiles())
	assert.Empty(t, c.FileIDs())

	c.Restore(snap)
	assert.Equal(t, []string{"aaaa1111"}, c.FileIDs())
	assert.Equal(t, 2, c.Len())

	c.StripFiles()
	c.Restore(snap)
	assert.Equal(t, []string{"aaaa1111"}, c.FileIDs(), "snapshot survives repeated restores")
}

func TestConversationTurnsAreCopies(t *testing.T) {
	c := NewConversation()
	c.Append(NewTurn(RoleUser, "hi", file("aaaa1111")))

	turns := c.Turns()
	turns[0].Parts[1].File.URI = "mutated"
	assert.Equal(t, []string{"aaaa1111"}, c.FileIDs())
}

func TestConversationRecent(t *testing.T) {
	c := NewConversation()
	for _, s := range []string{"a", "b", "c"} {
		c.Append(NewTurn(RoleUser, s))
	}
	recent := c.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Text())
	assert.Len(t, c.Recent(0), 3)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestTurnFiles(t *testing.T) {
	turn := NewTurn(RoleUser, "x", file("aaaa1111"))
	files := turn.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "aaaa1111", files[0].ID())
}

func TestManagerPersistsTurns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "history.json")

	m := NewManager(path, 10)
	require.NoError(t, m.Load())
	id := m.StartSession()
	require.NoError(t, m.AddTurns(
		NewTurn(RoleUser, "hello", file("aaaa1111")),
		NewTurn(RoleModel, "hi there"),
	))

	reloaded := NewManager(path, 10)
	require.NoError(t, reloaded.Load())
	sessions := reloaded.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)
	require.Len(t, sessions[0].Turns, 2)
	assert.Equal(t, "aaaa1111", sessions[0].Turns[0].Files()[0].ID())

	recent := m.RecentTurns(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "hi there", recent[0].Text())
}

func TestManagerPrunesOldSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	m := NewManager(path, 2)
	require.NoError(t, m.Load())

	for i := 0; i < 3; i++ {
		m.StartSession()
		require.NoError(t, m.AddTurns(NewTurn(RoleUser, "x")))
	}
	assert.Len(t, m.Sessions(), 2)
}

func TestManagerCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	m := NewManager(path, 10)
	require.NoError(t, m.Load())
	assert.Empty(t, m.Sessions())
	assert.FileExists(t, path+".backup")
}
