package lstm

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

type param struct {
	w, g, m, v []float64
}

func newParam(n int) *param {
	return &param{
		w: make([]float64, n),
		g: make([]float64, n),
		m: make([]float64, n),
		v: make([]float64, n),
	}
}

func (p *param) glorot(rng *rand.Rand, fanIn, fanOut int) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range p.w {
		p.w[i] = (rng.Float64()*2 - 1) * limit
	}
}

// recurrent is an LSTM layer with gates ordered input, forget, cell, output.
type recurrent struct {
	in, hid int
	w, u, b *param
}

func newRecurrent(rng *rand.Rand, in, hid int) *recurrent {
	l := &recurrent{in: in, hid: hid, w: newParam(4 * hid * in), u: newParam(4 * hid * hid), b: newParam(4 * hid)}
	l.w.glorot(rng, in, 4*hid)
	l.u.glorot(rng, hid, 4*hid)
	for j := 0; j < hid; j++ {
		l.b.w[hid+j] = 1
	}
	return l
}

type recurrentCache struct {
	xs [][]float64
	h  [][]float64
	c  [][]float64
	a  [][]float64
}

func (l *recurrent) forward(xs [][]float64) *recurrentCache {
	steps := len(xs)
	h := l.hid
	cache := &recurrentCache{
		xs: xs,
		h:  make([][]float64, steps+1),
		c:  make([][]float64, steps+1),
		a:  make([][]float64, steps),
	}
	cache.h[0] = make([]float64, h)
	cache.c[0] = make([]float64, h)
	for t, x := range xs {
		hPrev, cPrev := cache.h[t], cache.c[t]
		z := make([]float64, 4*h)
		for r := range z {
			z[r] = l.b.w[r] + floats.Dot(l.w.w[r*l.in:(r+1)*l.in], x) + floats.Dot(l.u.w[r*h:(r+1)*h], hPrev)
		}
		hNext := make([]float64, h)
		cNext := make([]float64, h)
		for j := 0; j < h; j++ {
			z[j] = sigmoid(z[j])
			z[h+j] = sigmoid(z[h+j])
			z[2*h+j] = math.Tanh(z[2*h+j])
			z[3*h+j] = sigmoid(z[3*h+j])
			cNext[j] = z[h+j]*cPrev[j] + z[j]*z[2*h+j]
			hNext[j] = z[3*h+j] * math.Tanh(cNext[j])
		}
		cache.a[t] = z
		cache.h[t+1] = hNext
		cache.c[t+1] = cNext
	}
	return cache
}

// backward accumulates parameter gradients given dL/dh_t for every step and
// returns dL/dx_t.
func (l *recurrent) backward(cache *recurrentCache, dh [][]float64) [][]float64 {
	h := l.hid
	steps := len(cache.xs)
	dx := make([][]float64, steps)
	dhNext := make([]float64, h)
	dcNext := make([]float64, h)
	dz := make([]float64, 4*h)
	for t := steps - 1; t >= 0; t-- {
		a := cache.a[t]
		cPrev, cCur, hPrev, x := cache.c[t], cache.c[t+1], cache.h[t], cache.xs[t]
		for j := 0; j < h; j++ {
			i, f, g, o := a[j], a[h+j], a[2*h+j], a[3*h+j]
			dhj := dh[t][j] + dhNext[j]
			tc := math.Tanh(cCur[j])
			dc := dhj*o*(1-tc*tc) + dcNext[j]
			dz[j] = dc * g * i * (1 - i)
			dz[h+j] = dc * cPrev[j] * f * (1 - f)
			dz[2*h+j] = dc * i * (1 - g*g)
			dz[3*h+j] = dhj * tc * o * (1 - o)
			dcNext[j] = dc * f
		}
		dx[t] = make([]float64, l.in)
		next := make([]float64, h)
		for r, d := range dz {
			if d == 0 {
				continue
			}
			l.b.g[r] += d
			floats.AddScaled(l.w.g[r*l.in:(r+1)*l.in], d, x)
			floats.AddScaled(l.u.g[r*h:(r+1)*h], d, hPrev)
			floats.AddScaled(dx[t], d, l.w.w[r*l.in:(r+1)*l.in])
			floats.AddScaled(next, d, l.u.w[r*h:(r+1)*h])
		}
		dhNext = next
	}
	return dx
}

type dense struct {
	in, out int
	w, b    *param
}

func newDense(rng *rand.Rand, in, out int) *dense {
	d := &dense{in: in, out: out, w: newParam(in * out), b: newParam(out)}
	d.w.glorot(rng, in, out)
	return d
}

func (d *dense) forward(x []float64) []float64 {
	y := make([]float64, d.out)
	for r := range y {
		y[r] = d.b.w[r] + floats.Dot(d.w.w[r*d.in:(r+1)*d.in], x)
	}
	return y
}

func (d *dense) backward(x, dy []float64) []float64 {
	dx := make([]float64, d.in)
	for r, g := range dy {
		d.b.g[r] += g
		floats.AddScaled(d.w.g[r*d.in:(r+1)*d.in], g, x)
		floats.AddScaled(dx, g, d.w.w[r*d.in:(r+1)*d.in])
	}
	return dx
}

// network is LSTM -> dropout -> LSTM -> dropout -> Dense(relu) -> Dense(1).
type network struct {
	l1, l2  *recurrent
	d1, d2  *dense
	dropout float64
	params  []*param
	steps   int
	rng     *rand.Rand
}

func newNetwork(opts Options) *network {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed+1))
	n := &network{
		l1:      newRecurrent(rng, 1, opts.Hidden1),
		l2:      newRecurrent(rng, opts.Hidden1, opts.Hidden2),
		d1:      newDense(rng, opts.Hidden2, opts.Dense),
		d2:      newDense(rng, opts.Dense, 1),
		dropout: opts.Dropout,
		rng:     rng,
	}
	n.params = []*param{n.l1.w, n.l1.u, n.l1.b, n.l2.w, n.l2.u, n.l2.b, n.d1.w, n.d1.b, n.d2.w, n.d2.b}
	return n
}

func (n *network) mask(size int, train bool) []float64 {
	m := make([]float64, size)
	for i := range m {
		m[i] = 1
		if train && n.dropout > 0 {
			if n.rng.Float64() < n.dropout {
				m[i] = 0
			} else {
				m[i] = 1 / (1 - n.dropout)
			}
		}
	}
	return m
}

func sequence(window []float64) [][]float64 {
	xs := make([][]float64, len(window))
	for i, v := range window {
		xs[i] = []float64{v}
	}
	return xs
}

func (n *network) predict(window []float64) float64 {
	c1 := n.l1.forward(sequence(window))
	c2 := n.l2.forward(c1.h[1:])
	r := relu(n.d1.forward(c2.h[len(window)]))
	return n.d2.forward(r)[0]
}

// accumulate runs one forward/backward pass and adds scale*dLoss to the
// gradients. It returns the squared error.
func (n *network) accumulate(window []float64, target, scale float64, train bool) float64 {
	steps := len(window)
	c1 := n.l1.forward(sequence(window))
	m1 := make([][]float64, steps)
	in2 := make([][]float64, steps)
	for t := 0; t < steps; t++ {
		m1[t] = n.mask(n.l1.hid, train)
		in2[t] = make([]float64, n.l1.hid)
		floats.MulTo(in2[t], c1.h[t+1], m1[t])
	}
	c2 := n.l2.forward(in2)
	m2 := n.mask(n.l2.hid, train)
	last := make([]float64, n.l2.hid)
	floats.MulTo(last, c2.h[steps], m2)

	z1 := n.d1.forward(last)
	r1 := relu(z1)
	out := n.d2.forward(r1)[0]
	diff := out - target

	dr1 := n.d2.backward(r1, []float64{2 * diff * scale})
	for i := range dr1 {
		if z1[i] <= 0 {
			dr1[i] = 0
		}
	}
	dLast := n.d1.backward(last, dr1)
	floats.Mul(dLast, m2)

	dh2 := make([][]float64, steps)
	for t := range dh2 {
		dh2[t] = make([]float64, n.l2.hid)
	}
	dh2[steps-1] = dLast
	dx2 := n.l2.backward(c2, dh2)
	for t := range dx2 {
		floats.Mul(dx2[t], m1[t])
	}
	n.l1.backward(c1, dx2)
	return diff * diff
}

func (n *network) zeroGrad() {
	for _, p := range n.params {
		for i := range p.g {
			p.g[i] = 0
		}
	}
}

// adam applies one Adam update and clears the gradients.
func (n *network) adam(lr float64) {
	const beta1, beta2, eps = 0.9, 0.999, 1e-7
	n.steps++
	c1 := 1 - math.Pow(beta1, float64(n.steps))
	c2 := 1 - math.Pow(beta2, float64(n.steps))
	for _, p := range n.params {
		for i, g := range p.g {
			p.m[i] = beta1*p.m[i] + (1-beta1)*g
			p.v[i] = beta2*p.v[i] + (1-beta2)*g*g
			p.w[i] -= lr * (p.m[i] / c1) / (math.Sqrt(p.v[i]/c2) + eps)
			p.g[i] = 0
		}
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func relu(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Max(0, v)
	}
	return out
}
