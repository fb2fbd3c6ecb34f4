// Command graphdemo builds a small two-layer linear-regression-style graph,
// differentiates its loss with respect to the weight matrices, optimizes
// the resulting graph, compiles it, and writes an HTML visualization —
// exercising every package end to end the way a smoke-test program would.
package main

import (
	"flag"
	"os"

	"github.com/metadiff/core/autodiff"
	"github.com/metadiff/core/backend"
	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/graph"
	"github.com/metadiff/core/ops"
	"github.com/metadiff/core/registry"
	"github.com/metadiff/core/rewrite"
	"github.com/metadiff/core/symbolic"
	"github.com/metadiff/core/tshape"
	"github.com/metadiff/core/visual"
	"github.com/sirupsen/logrus"
)

func main() {
	htmlPath := flag.String("html", "graph.html", "path to write the graph visualization to")
	flag.Parse()

	log := logrus.StandardLogger()

	cfg := graph.DefaultConfig()
	g := graph.New(cfg, registry.New(), graph.WithLogger(log))

	batch := symbolic.FromVar(0)
	inFeatures := symbolic.Const(4)
	hidden := symbolic.Const(8)

	x, err := ops.Matrix(g, batch, inFeatures, dtype.F64)
	fatalIf(log, err)
	w1, err := ops.Matrix(g, inFeatures, hidden, dtype.F64)
	fatalIf(log, err)
	b1, err := ops.Matrix(g, symbolic.Const(1), hidden, dtype.F64)
	fatalIf(log, err)
	labels, err := ops.Vector(g, batch, dtype.F64)
	fatalIf(log, err)

	h1, err := ops.MatMul(g, x, w1)
	fatalIf(log, err)
	h1b, err := ops.SumAdd(g, h1, b1)
	fatalIf(log, err)
	activated, err := ops.Tanh(g, h1b)
	fatalIf(log, err)

	w2, err := ops.Matrix(g, hidden, symbolic.Const(1), dtype.F64)
	fatalIf(log, err)
	logits, err := ops.MatMul(g, activated, w2)
	fatalIf(log, err)
	logitsVec, err := ops.Reshape(g, logits, tshape.Vector(batch))
	fatalIf(log, err)

	loss, err := ops.BinaryCrossEntropyLogit(g, logitsVec, labels)
	fatalIf(log, err)
	lossScalar, err := ops.Sum(g, loss, []int{0}, false)
	fatalIf(log, err)

	grads, err := autodiff.Differentiate(g, lossScalar, []graph.NodeID{w1, b1, w2})
	fatalIf(log, err)

	outputs := append([]graph.NodeID{lossScalar}, grads...)
	inputs := []graph.NodeID{x, labels, w1, b1, w2}

	optimized, newOutputs, _, newInputs, err := rewrite.Optimize(g, outputs, nil, inputs)
	fatalIf(log, err)

	compiled, err := backend.Compile(optimized, newInputs, newOutputs, nil)
	fatalIf(log, err)
	log.WithField("compiled_id", compiled.ID).WithField("nodes", optimized.Len()).Info("compiled graph")

	fatalIf(log, visual.SerializeToHTML(optimized, *htmlPath))
	log.WithField("path", *htmlPath).Info("wrote graph visualization")
}

func fatalIf(log *logrus.Logger, err error) {
	if err != nil {
		log.WithError(err).Error("graphdemo failed")
		os.Exit(1)
	}
}
