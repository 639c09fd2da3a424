package boards

import (
	"context"
	"testing"
	"time"

	"agora-backend/internal/document"
	"agora-backend/internal/domain"
	"agora-backend/internal/graphops"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupBoardsTest(t *testing.T) (*Service, *redis.Client) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.Board{}, &domain.DocDelta{}, &domain.MarketState{}))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	return &Service{DB: db, Rdb: rdb, Registry: NewRegistry(db)}, rdb
}

// clientDelta builds an encoded delta the way a collaborating client would,
// on its own replica of the document.
func clientDelta(t *testing.T, docID uuid.UUID, replica string, fn func(*document.Txn) error) []byte {
	t.Helper()
	client := document.NewStore(docID.String(), replica)
	d, err := client.ApplyLocal(document.OriginUser, fn)
	require.NoError(t, err)
	payload, err := d.Encode()
	require.NoError(t, err)
	return payload
}

func TestCreateBoard_SeedsRootAndState(t *testing.T) {
	svc, _ := setupBoardsTest(t)
	ctx := context.Background()
	userID := uuid.New()

	board, err := svc.CreateBoard(ctx, userID, "Free Will Exists", "")
	require.NoError(t, err)
	assert.Equal(t, "free-will-exists", board.Slug)
	assert.NotEmpty(t, board.RootNodeID)

	var state domain.MarketState
	require.NoError(t, svc.DB.Where(`"doc_id" = ?`, board.BoardID).First(&state).Error)
	assert.Equal(t, int64(0), state.Version)

	var deltas []domain.DocDelta
	require.NoError(t, svc.DB.Where(`"doc_id" = ?`, board.BoardID).Find(&deltas).Error)
	require.Len(t, deltas, 1)
	assert.Equal(t, string(document.OriginRuntime), deltas[0].Origin)

	result, err := svc.Structure(ctx, board.BoardID)
	require.NoError(t, err)
	require.Len(t, result.Structure.Nodes, 1)
	assert.Equal(t, board.RootNodeID, result.Structure.Nodes[0].ID)
	assert.Equal(t, document.NodeStatement, result.Structure.Nodes[0].Type)

	secs, err := svc.Securities(ctx, board.BoardID)
	require.NoError(t, err)
	assert.Contains(t, secs, board.RootNodeID)
}

func TestCreateBoard_Validation(t *testing.T) {
	svc, _ := setupBoardsTest(t)
	ctx := context.Background()

	_, err := svc.CreateBoard(ctx, uuid.New(), "   ", "")
	assert.ErrorIs(t, err, ErrMissingTitle)

	_, err = svc.CreateBoard(ctx, uuid.New(), "Topic", "taken")
	require.NoError(t, err)
	_, err = svc.CreateBoard(ctx, uuid.New(), "Other Topic", "taken")
	assert.ErrorIs(t, err, ErrSlugTaken)
}

func TestResolve(t *testing.T) {
	svc, _ := setupBoardsTest(t)
	ctx := context.Background()

	board, err := svc.CreateBoard(ctx, uuid.New(), "Resolvable", "resolvable")
	require.NoError(t, err)

	bySlug, err := svc.Resolve(ctx, "resolvable")
	require.NoError(t, err)
	assert.Equal(t, board.BoardID, bySlug)

	byID, err := svc.Resolve(ctx, board.BoardID.String())
	require.NoError(t, err)
	assert.Equal(t, board.BoardID, byID)

	_, err = svc.Resolve(ctx, "nope")
	assert.ErrorIs(t, err, ErrBoardNotFound)
	_, err = svc.Resolve(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrBoardNotFound)
}

func TestIngestDelta_PersistsAndPublishes(t *testing.T) {
	svc, rdb := setupBoardsTest(t)
	ctx := context.Background()

	board, err := svc.CreateBoard(ctx, uuid.New(), "Pubsub", "pubsub")
	require.NoError(t, err)

	sub := rdb.Subscribe(ctx, DeltaChannel(board.BoardID.String()))
	t.Cleanup(func() { sub.Close() })
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	payload := clientDelta(t, board.BoardID, "client-1", func(tx *document.Txn) error {
		tx.PutNode(document.Node{ID: "A", Type: document.NodePoint, Data: document.PointData{Content: "because"}})
		return nil
	})
	require.NoError(t, svc.IngestDelta(ctx, board.BoardID, uuid.New(), payload))

	select {
	case msg := <-sub.Channel():
		assert.JSONEq(t, string(payload), msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("delta was not published")
	}

	var count int64
	require.NoError(t, svc.DB.Model(&domain.DocDelta{}).Where(`"doc_id" = ?`, board.BoardID).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	result, err := svc.Structure(ctx, board.BoardID)
	require.NoError(t, err)
	assert.Len(t, result.Structure.Nodes, 2)
}

// Replay deltas mutate the live store but never re-enter the log or the
// pub/sub channel.
func TestIngestDelta_ReplayIsNotRepublished(t *testing.T) {
	svc, rdb := setupBoardsTest(t)
	ctx := context.Background()

	board, err := svc.CreateBoard(ctx, uuid.New(), "Replay", "replay")
	require.NoError(t, err)

	sub := rdb.Subscribe(ctx, DeltaChannel(board.BoardID.String()))
	t.Cleanup(func() { sub.Close() })
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	replay := document.Delta{
		DocID:   board.BoardID.String(),
		Replica: "client-1",
		Origin:  document.OriginReplay,
		Nodes: []document.NodeWrite{
			{
				Clock: document.Clock{Lamport: 1, Replica: "client-1"},
				Node:  document.Node{ID: "R", Type: document.NodePoint, Data: document.PointData{Content: "replayed"}},
			},
		},
	}
	payload, err := replay.Encode()
	require.NoError(t, err)
	require.NoError(t, svc.IngestDelta(ctx, board.BoardID, uuid.New(), payload))

	// Applied to the live document.
	result, err := svc.Structure(ctx, board.BoardID)
	require.NoError(t, err)
	assert.Len(t, result.Structure.Nodes, 2)

	// Not appended to the log.
	var count int64
	require.NoError(t, svc.DB.Model(&domain.DocDelta{}).Where(`"doc_id" = ?`, board.BoardID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// The next published message is the user delta, not the replay.
	userPayload := clientDelta(t, board.BoardID, "client-2", func(tx *document.Txn) error {
		tx.PutNode(document.Node{ID: "U", Type: document.NodePoint, Data: document.PointData{Content: "typed"}})
		return nil
	})
	require.NoError(t, svc.IngestDelta(ctx, board.BoardID, uuid.New(), userPayload))

	select {
	case msg := <-sub.Channel():
		assert.JSONEq(t, string(userPayload), msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("user delta was not published")
	}
}

func TestIngestDelta_Validation(t *testing.T) {
	svc, _ := setupBoardsTest(t)
	ctx := context.Background()

	board, err := svc.CreateBoard(ctx, uuid.New(), "Strict", "strict")
	require.NoError(t, err)

	err = svc.IngestDelta(ctx, board.BoardID, uuid.New(), []byte("not json"))
	assert.ErrorIs(t, err, ErrInvalidDelta)

	other := clientDelta(t, uuid.New(), "client-1", func(tx *document.Txn) error {
		tx.PutNode(document.Node{ID: "X", Type: document.NodePoint, Data: document.PointData{Content: "x"}})
		return nil
	})
	err = svc.IngestDelta(ctx, board.BoardID, uuid.New(), other)
	assert.ErrorIs(t, err, ErrWrongDocument)
}

// A fresh registry replays the log and converges on the same snapshot.
func TestRegistryHydration(t *testing.T) {
	svc, _ := setupBoardsTest(t)
	ctx := context.Background()

	board, err := svc.CreateBoard(ctx, uuid.New(), "Durable", "durable")
	require.NoError(t, err)

	payload := clientDelta(t, board.BoardID, "client-1", func(tx *document.Txn) error {
		tx.PutNode(document.Node{ID: "A", Type: document.NodePoint, Data: document.PointData{Content: "because"}})
		tx.SetText("A", "because")
		return nil
	})
	require.NoError(t, svc.IngestDelta(ctx, board.BoardID, uuid.New(), payload))

	before, err := svc.Snapshot(ctx, board.BoardID)
	require.NoError(t, err)

	// Simulate a restart.
	rehydrated := &Service{DB: svc.DB, Registry: NewRegistry(svc.DB)}
	after, err := rehydrated.Snapshot(ctx, board.BoardID)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	// Hydration must not have grown the log.
	var count int64
	require.NoError(t, svc.DB.Model(&domain.DocDelta{}).Where(`"doc_id" = ?`, board.BoardID).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

// Securities follow the reconciled structure: nodes plus support edges,
// with anchors folded into their edge id.
func TestSecurities_SupportEdge(t *testing.T) {
	svc, _ := setupBoardsTest(t)
	ctx := context.Background()

	board, err := svc.CreateBoard(ctx, uuid.New(), "Supported", "supported")
	require.NoError(t, err)

	edgeID := "edge:support:C->" + board.RootNodeID
	payload := clientDelta(t, board.BoardID, "client-1", func(tx *document.Txn) error {
		tx.PutNode(document.Node{ID: "C", Type: document.NodePoint, Data: document.PointData{Content: "evidence"}})
		tx.PutEdge(document.Edge{ID: edgeID, Type: document.EdgeSupport, Source: "C", Target: board.RootNodeID})
		tx.PutNode(document.Node{
			ID:   document.AnchorID(edgeID),
			Type: document.NodeEdgeAnchor,
			Data: document.EdgeAnchorData{ParentEdgeID: edgeID},
		})
		return nil
	})
	require.NoError(t, svc.IngestDelta(ctx, board.BoardID, uuid.New(), payload))

	secs, err := svc.Securities(ctx, board.BoardID)
	require.NoError(t, err)
	assert.Contains(t, secs, board.RootNodeID)
	assert.Contains(t, secs, "C")
	assert.Contains(t, secs, edgeID)
	assert.NotContains(t, secs, document.AnchorID(edgeID))
}

func TestIngestDelta_FromEditorOps(t *testing.T) {
	svc, _ := setupBoardsTest(t)
	ctx := context.Background()
	userID := uuid.New()

	board, err := svc.CreateBoard(ctx, userID, "Editor Pipeline", "")
	require.NoError(t, err)

	// Hydrate a client replica from the seed delta, then edit through the
	// typed operation layer. Every emitted delta is shipped to the server.
	var seed domain.DocDelta
	require.NoError(t, svc.DB.Where(`"doc_id" = ?`, board.BoardID).First(&seed).Error)
	seedDelta, err := document.DecodeDelta(seed.Payload)
	require.NoError(t, err)

	client := document.NewStore(board.BoardID.String(), "client-1")
	require.NoError(t, client.ApplyRemote(seedDelta))

	ops := graphops.NewOps(client, func(d document.Delta) {
		payload, err := d.Encode()
		require.NoError(t, err)
		require.NoError(t, svc.IngestDelta(ctx, board.BoardID, userID, payload))
	})

	point := document.Node{
		ID:       "p1",
		Type:     document.NodePoint,
		Position: document.Position{X: 120, Y: 80},
		Data:     document.PointData{Content: "Counterexample"},
	}
	require.NoError(t, ops.SyncNodes(document.OriginUser, []document.Node{point}))

	edge, err := ops.Connect("p1", board.RootNodeID)
	require.NoError(t, err)
	assert.Equal(t, document.EdgeStatement, edge.Type)

	var count int64
	require.NoError(t, svc.DB.Model(&domain.DocDelta{}).
		Where(`"doc_id" = ?`, board.BoardID).Count(&count).Error)
	assert.Equal(t, int64(3), count)

	snap, err := svc.Snapshot(ctx, board.BoardID)
	require.NoError(t, err)
	decoded, err := document.DecodeSnapshot(snap)
	require.NoError(t, err)
	assert.Len(t, decoded.Edges, 1)

	secs, err := svc.Securities(ctx, board.BoardID)
	require.NoError(t, err)
	assert.Contains(t, secs, "p1")
	assert.Contains(t, secs, board.RootNodeID)
}
