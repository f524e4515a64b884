package main

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestShutdownPlanRunsPhasesInOrder(t *testing.T) {
	plan := newShutdownPlan(nil)
	order := []string{}

	plan.Add("http", func(context.Context) error {
		order = append(order, "http")
		return nil
	})
	plan.Add("coordinator", func(context.Context) error {
		order = append(order, "coordinator")
		return errors.New("watcher busy")
	})
	plan.Add("services", func(context.Context) error {
		order = append(order, "services")
		return nil
	})
	plan.Add("skipped", nil)

	err := plan.Run(context.Background())
	if err == nil || err.Error() != "watcher busy" {
		t.Fatalf("expected joined phase error, got %v", err)
	}
	expected := []string{"http", "coordinator", "services"}
	if !reflect.DeepEqual(order, expected) {
		t.Fatalf("expected order %v, got %v", expected, order)
	}

	if err := plan.Run(context.Background()); err != nil {
		t.Fatalf("second run should be a no-op, got %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("phases ran twice: %v", order)
	}
}
