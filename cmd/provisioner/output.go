package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	"github.com/tigerroll/provisioner/pkg/provision/engine/executor"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
)

// readItems decodes a YAML list of item specs.
func readItems(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return exception.NewBatchErrorf("cli", exception.KindValidation, "failed to read %s", path, err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return exception.NewBatchErrorf("cli", exception.KindValidation, "failed to parse %s", path, err)
	}
	return nil
}

func printYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

type itemView struct {
	Index    int              `yaml:"index"`
	Status   model.ItemStatus `yaml:"status"`
	Attempts int              `yaml:"attempts"`
	Error    string           `yaml:"error,omitempty"`
	Result   model.Properties `yaml:"result,omitempty"`
}

type batchView struct {
	ID         string            `yaml:"id"`
	Kind       model.BatchKind   `yaml:"kind"`
	Status     model.BatchStatus `yaml:"status"`
	Summary    string            `yaml:"summary"`
	StartedAt  *time.Time        `yaml:"started_at,omitempty"`
	FinishedAt *time.Time        `yaml:"completed_at,omitempty"`
	Items      []itemView        `yaml:"items"`
}

// printBatch renders a batch as YAML with one entry per item.
func printBatch(w io.Writer, res *executor.BatchResult) error {
	op := res.Batch
	view := batchView{
		ID:         op.ID,
		Kind:       op.Kind,
		Status:     op.Status,
		Summary:    summary(op),
		StartedAt:  op.StartedAt,
		FinishedAt: op.CompletedAt,
		Items:      make([]itemView, 0, len(res.Items)),
	}
	for _, it := range res.Items {
		v := itemView{Index: it.Index, Status: it.Status, Attempts: it.Attempts, Result: it.ResultData}
		if it.ErrorCode != "" {
			v.Error = it.ErrorCode + ": " + it.ErrorMessage
		}
		view.Items = append(view.Items, v)
	}
	return printYAML(w, view)
}

func summary(op *model.BatchOperation) string {
	s := fmt.Sprintf("%d of %d succeeded", op.SuccessfulItems, op.TotalItems)
	if op.FailedItems > 0 {
		s += fmt.Sprintf(", %d failed", op.FailedItems)
	}
	if op.SkippedItems > 0 {
		s += fmt.Sprintf(", %d skipped", op.SkippedItems)
	}
	return s
}

func printBatchTable(w io.Writer, ops []*model.BatchOperation) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tSUMMARY\tCREATED")
	for _, op := range ops {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", op.ID, op.Kind, op.Status, summary(op), op.CreatedAt.Format(time.RFC3339))
	}
	tw.Flush()
}
