// Package pkt implements the numerical core of Probabilistic Knowledge
// Transfer.
//
// A batch of embeddings X with shape [N, D] is turned into a row-stochastic
// [N, N] matrix of conditional probabilities:
//
//	Y   = X / (‖X‖₂ + eps)      row-wise, NaN elements replaced by 0
//	S   = (Y·Yᵀ + 1) / 2        cosine similarity rescaled to [0, 1]
//	P   = S / rowsum(S)         no eps: a zero row sum yields NaN/Inf
//
// The student is trained to match the teacher distribution under
//
//	L = mean_ij( Pt_ij · log((Pt_ij + eps) / (Ps_ij + eps)) )
//
// which is a flat mean over all N² entries, not a per-row KL average.
// The teacher distribution is the reference and is never differentiated.
//
// All kernels work on gonum dense matrices in float64.
package pkt

// Defaults used by the original PKT formulation.
const (
	DefaultEps    = 1e-5
	DefaultLambda = 1000.0
)
