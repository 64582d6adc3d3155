package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var stepInfo = &grpc.UnaryServerInfo{FullMethod: "/flappy.v1.EnvService/Step"}

func TestRecoveryInterceptor(t *testing.T) {
	_, err := recoveryInterceptor(context.Background(), nil, stepInfo,
		func(ctx context.Context, req interface{}) (interface{}, error) {
			panic("boom")
		})
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestRecoveryInterceptorPassesThrough(t *testing.T) {
	resp, err := recoveryInterceptor(context.Background(), nil, stepInfo,
		func(ctx context.Context, req interface{}) (interface{}, error) {
			return "ok", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestLoggingInterceptorKeepsError(t *testing.T) {
	want := status.Error(codes.NotFound, "env not found")
	_, err := loggingInterceptor(context.Background(), nil, stepInfo,
		func(ctx context.Context, req interface{}) (interface{}, error) {
			return nil, want
		})
	assert.True(t, errors.Is(err, want) || status.Code(err) == codes.NotFound)
}

func TestStreamRecoveryInterceptor(t *testing.T) {
	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}
	err := streamRecoveryInterceptor(nil, nil, info, func(srv interface{}, ss grpc.ServerStream) error {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}
