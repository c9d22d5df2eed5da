package gbdt

// Node is a tree node. Internal nodes send x to Left when x[Feature] <= Threshold.
type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`

	bin int
}

// Tree is a regression tree stored as a flat node list rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (t *Tree) predictBinned(d *dataset, row int) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if int(d.bins[n.Feature][row]) <= n.bin {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// NumLeaves counts the leaves of the tree.
func (t *Tree) NumLeaves() int {
	n := 0
	for _, node := range t.Nodes {
		if node.Leaf {
			n++
		}
	}
	return n
}

type split struct {
	valid     bool
	feature   int
	bin       int
	gain      float64
	leftG     float64
	leftH     float64
	leftCount int
}

type leaf struct {
	node  int
	rows  []int
	depth int
	sumG  float64
	sumH  float64
	best  split
}

type histBin struct {
	g, h float64
	n    int
}

type treeBuilder struct {
	data     *dataset
	grad     []float64
	hess     []float64
	features []int
	params   Params
	hist     []histBin
}

func newTreeBuilder(d *dataset, grad, hess []float64, features []int, p Params) *treeBuilder {
	return &treeBuilder{
		data:     d,
		grad:     grad,
		hess:     hess,
		features: features,
		params:   p,
		hist:     make([]histBin, 256),
	}
}

func (b *treeBuilder) score(g, h float64) float64 {
	return g * g / (h + b.params.Lambda)
}

func (b *treeBuilder) newLeaf(node int, rows []int, depth int) *leaf {
	l := &leaf{node: node, rows: rows, depth: depth}
	for _, r := range rows {
		l.sumG += b.grad[r]
		l.sumH += b.hess[r]
	}
	if b.params.MaxDepth <= 0 || depth < b.params.MaxDepth {
		l.best = b.findSplit(l)
	}
	return l
}

func (b *treeBuilder) findSplit(l *leaf) split {
	p := b.params
	var best split
	if len(l.rows) < 2*p.MinDataInLeaf {
		return best
	}
	parent := b.score(l.sumG, l.sumH)

	for _, f := range b.features {
		nbins := b.data.numBins(f)
		if nbins < 2 {
			continue
		}
		hist := b.hist[:nbins]
		for i := range hist {
			hist[i] = histBin{}
		}
		col := b.data.bins[f]
		for _, r := range l.rows {
			h := &hist[col[r]]
			h.g += b.grad[r]
			h.h += b.hess[r]
			h.n++
		}

		var gl, hl float64
		var nl int
		for bin := 0; bin < nbins-1; bin++ {
			gl += hist[bin].g
			hl += hist[bin].h
			nl += hist[bin].n
			nr := len(l.rows) - nl
			if nl < p.MinDataInLeaf || hl < p.MinSumHessian {
				continue
			}
			if nr < p.MinDataInLeaf {
				break
			}
			gr, hr := l.sumG-gl, l.sumH-hl
			if hr < p.MinSumHessian {
				continue
			}
			gain := b.score(gl, hl) + b.score(gr, hr) - parent
			if gain > best.gain {
				best = split{valid: true, feature: f, bin: bin, gain: gain, leftG: gl, leftH: hl, leftCount: nl}
			}
		}
	}
	return best
}

// build grows the tree leaf-wise: the leaf with the largest gain is split next.
func (b *treeBuilder) build(rows []int) *Tree {
	p := b.params
	tree := &Tree{Nodes: []Node{{Leaf: true}}}
	leaves := []*leaf{b.newLeaf(0, rows, 0)}

	for len(leaves) < p.NumLeaves {
		pick := -1
		for i, l := range leaves {
			if l.best.valid && (pick < 0 || l.best.gain > leaves[pick].best.gain) {
				pick = i
			}
		}
		if pick < 0 {
			break
		}

		l := leaves[pick]
		s := l.best
		col := b.data.bins[s.feature]
		left := make([]int, 0, s.leftCount)
		right := make([]int, 0, len(l.rows)-s.leftCount)
		for _, r := range l.rows {
			if int(col[r]) <= s.bin {
				left = append(left, r)
			} else {
				right = append(right, r)
			}
		}

		li, ri := len(tree.Nodes), len(tree.Nodes)+1
		tree.Nodes = append(tree.Nodes, Node{Leaf: true}, Node{Leaf: true})
		tree.Nodes[l.node] = Node{
			Feature:   s.feature,
			Threshold: b.data.thresholds[s.feature][s.bin],
			Left:      li,
			Right:     ri,
			bin:       s.bin,
		}

		leaves[pick] = b.newLeaf(li, left, l.depth+1)
		leaves = append(leaves, b.newLeaf(ri, right, l.depth+1))
	}

	for _, l := range leaves {
		denom := l.sumH + p.Lambda
		if denom <= 0 {
			continue
		}
		tree.Nodes[l.node].Value = -p.LearningRate * l.sumG / denom
	}
	return tree
}
