// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package mongostore

import (
	"context"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Connect creates a client for uri. The client connects lazily; use Ping to
// check reachability.
func Connect(uri string, timeout time.Duration) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(uri).SetAppName("warden")
	if timeout > 0 {
		opts.SetServerSelectionTimeout(timeout)
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, oops.Code("MONGO_CONNECT_FAILED").With("operation", "create client").Wrap(err)
	}
	return client, nil
}

// Ping checks that the primary answers.
func Ping(ctx context.Context, client *mongo.Client) error {
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return oops.Code("MONGO_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}
	return nil
}
