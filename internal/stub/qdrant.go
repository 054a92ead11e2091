// Copyright 2026 © The Concierge Authors
// SPDX-License-Identifier: Apache-2.0

package stub

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const embedDim = 64

// QdrantIndex retrieves passages from a Qdrant collection. It is the
// optional vector path for the knowledge backend; the default is the
// in-memory index.
type QdrantIndex struct {
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	conn        *grpc.ClientConn
}

// NewQdrantIndex connects to Qdrant at addr (host:port, gRPC).
func NewQdrantIndex(addr, collection string) (*QdrantIndex, error) {
	if collection == "" {
		collection = "concierge_passages"
	}
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}
	return &QdrantIndex{
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		conn:        conn,
	}, nil
}

// EnsureSeeded creates the collection if needed and upserts the passages.
// Upsert is idempotent per passage because point ids derive from passage ids.
func (q *QdrantIndex) EnsureSeeded(ctx context.Context, passages []Passage) error {
	_, err := q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     embedDim,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		// The collection may already exist; verify by listing.
		if _, listErr := q.collections.List(ctx, &pb.ListCollectionsRequest{}); listErr != nil {
			return fmt.Errorf("creating collection: %w", err)
		}
	}

	points := make([]*pb.PointStruct, 0, len(passages))
	for _, p := range passages {
		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: uuid.NewSHA1(uuid.NameSpaceOID, []byte(p.ID)).String()},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: Embed(p.Title+" "+p.Text, embedDim)},
				},
			},
			Payload: map[string]*pb.Value{
				"title":  {Kind: &pb.Value_StringValue{StringValue: p.Title}},
				"source": {Kind: &pb.Value_StringValue{StringValue: p.Source}},
				"text":   {Kind: &pb.Value_StringValue{StringValue: p.Text}},
			},
		})
	}
	if _, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("seeding passages: %w", err)
	}
	return nil
}

// Search embeds the query and returns the closest passages.
func (q *QdrantIndex) Search(ctx context.Context, query string, limit int) ([]Passage, error) {
	if limit <= 0 {
		limit = 3
	}
	threshold := float32(0.1)
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         Embed(query, embedDim),
		Limit:          uint64(limit),
		ScoreThreshold: &threshold,
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("searching passages: %w", err)
	}

	out := make([]Passage, 0, len(resp.Result))
	for _, r := range resp.Result {
		p := Passage{}
		if v, ok := r.Payload["title"]; ok {
			p.Title = v.GetStringValue()
		}
		if v, ok := r.Payload["source"]; ok {
			p.Source = v.GetStringValue()
		}
		if v, ok := r.Payload["text"]; ok {
			p.Text = v.GetStringValue()
		}
		out = append(out, p)
	}
	return out, nil
}

// Close releases the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.conn.Close()
}
