package topics

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

const (
	nmfMaxIter = 200
	nmfTol     = 1e-4
	nmfEps     = 1e-12
)

// nmf factorizes the non-negative matrix X (docs x terms) into
// W (docs x k) and H (k x terms) by multiplicative updates on the
// Frobenius reconstruction objective. The seed fixes the random
// initialization so a given corpus always factorizes the same way.
//
// It reports an error when the factors go non-finite or the objective
// fails to settle within the iteration budget; the caller is expected
// to dispatch to the fallback model in that case.
func nmf(X *mat.Dense, k int, seed uint64) (*mat.Dense, *mat.Dense, error) {
	nDocs, nTerms := X.Dims()
	if k >= nDocs || k >= nTerms {
		return nil, nil, fmt.Errorf("cannot extract %d components from a %dx%d matrix", k, nDocs, nTerms)
	}

	rng := rand.New(rand.NewSource(seed))
	scale := math.Sqrt(mat.Sum(X)/float64(nDocs*nTerms)/float64(k)) + nmfEps

	W := mat.NewDense(nDocs, k, nil)
	H := mat.NewDense(k, nTerms, nil)
	for i := 0; i < nDocs; i++ {
		for j := 0; j < k; j++ {
			W.Set(i, j, rng.Float64()*scale+nmfEps)
		}
	}
	for i := 0; i < k; i++ {
		for j := 0; j < nTerms; j++ {
			H.Set(i, j, rng.Float64()*scale+nmfEps)
		}
	}

	// The W and H updates have different shapes (docs x k vs
	// k x terms), so each needs its own numerator and denominator
	// receivers. Only gram is shared: both Gram matrices are k x k.
	var (
		wNum, wDen mat.Dense
		hNum, hDen mat.Dense
		gram       mat.Dense
		initErr    = frobeniusError(X, W, H)
		prevErr    = initErr
		converged  = initErr == 0
	)

	for iter := 0; iter < nmfMaxIter && !converged; iter++ {
		// W <- W * (X Hᵀ) / (W H Hᵀ)
		wNum.Mul(X, H.T())
		gram.Mul(H, H.T())
		wDen.Mul(W, &gram)
		multiplicativeStep(W, &wNum, &wDen)

		// H <- H * (Wᵀ X) / (Wᵀ W H)
		hNum.Mul(W.T(), X)
		gram.Mul(W.T(), W)
		hDen.Mul(&gram, H)
		multiplicativeStep(H, &hNum, &hDen)

		if (iter+1)%10 != 0 {
			continue
		}
		cur := frobeniusError(X, W, H)
		if math.IsNaN(cur) || math.IsInf(cur, 0) {
			return nil, nil, fmt.Errorf("objective went non-finite at iteration %d", iter+1)
		}
		if initErr > 0 && (prevErr-cur)/initErr < nmfTol {
			converged = true
		}
		prevErr = cur
	}

	if !converged {
		return nil, nil, fmt.Errorf("no convergence after %d iterations (last objective %.6g)", nmfMaxIter, prevErr)
	}
	if hasNonFinite(W) || hasNonFinite(H) {
		return nil, nil, fmt.Errorf("factor matrices contain non-finite values")
	}
	return W, H, nil
}

func multiplicativeStep(target, num, den *mat.Dense) {
	r, c := target.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			target.Set(i, j, target.At(i, j)*num.At(i, j)/(den.At(i, j)+nmfEps))
		}
	}
}

func frobeniusError(X, W, H *mat.Dense) float64 {
	var approx, diff mat.Dense
	approx.Mul(W, H)
	diff.Sub(X, &approx)
	return mat.Norm(&diff, 2)
}

func hasNonFinite(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}
