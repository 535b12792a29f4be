// Package jsonfile reads orders and workflow configurations exported to disk
package jsonfile

import (
	"context"
	"os"

	"slaledger/internal/core/calendar"
	"slaledger/internal/core/order"
	perr "slaledger/internal/platform/errors"
	"slaledger/internal/platform/logger"
)

// Source serves one configuration from two files
type Source struct {
	OrdersPath   string
	WorkflowPath string
}

// New binds the order export and the workflow configuration paths
func New(ordersPath, workflowPath string) *Source {
	return &Source{OrdersPath: ordersPath, WorkflowPath: workflowPath}
}

// Orders reads a JSON array of orders or a {results:[...]} page
func (s *Source) Orders(ctx context.Context, configID string) ([]order.Order, error) {
	b, err := read(ctx, s.OrdersPath)
	if err != nil {
		return nil, err
	}
	out, err := order.DecodeList(b)
	if err != nil {
		return nil, perr.WithOp(err, "orders "+s.OrdersPath)
	}
	logger.C(ctx).Debug().Str("path", s.OrdersPath).Int("orders", len(out)).Msg("orders read from file")
	return out, nil
}

// Workflow reads the workflow configuration; a blank path yields an empty
// configuration so every stage classifies as unknown
func (s *Source) Workflow(ctx context.Context, configID string) (calendar.WorkflowConfig, error) {
	if s.WorkflowPath == "" {
		logger.C(ctx).Warn().Msg("no workflow file configured; stages will have no SLA")
		return calendar.WorkflowConfig{}, nil
	}
	b, err := read(ctx, s.WorkflowPath)
	if err != nil {
		return calendar.WorkflowConfig{}, err
	}
	return calendar.Decode(b)
}

// ConfigName returns the name embedded in the workflow file, "" when unknown
func (s *Source) ConfigName(ctx context.Context, configID string) (string, error) {
	if s.WorkflowPath == "" {
		return "", nil
	}
	wf, err := s.Workflow(ctx, configID)
	if err != nil {
		return "", err
	}
	return wf.Name, nil
}

func read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perr.Wrapf(err, perr.ErrorCodeNotFound, "read %s", path)
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "read %s", path)
	}
	return b, nil
}
