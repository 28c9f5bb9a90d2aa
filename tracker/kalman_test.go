package tracker

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

// floatsEqual compares slices of float32
func floatsEqual(a, b []float32, epsilon float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if diff := a[i] - b[i]; diff > epsilon || diff < -epsilon {
			return false
		}
	}
	return true
}

// TestKalmanFilter checks the filter against per axis closed form values.
// With diagonal noise every axis reduces to an independent position and
// velocity pair
func TestKalmanFilter(t *testing.T) {

	kf := NewKalmanFilter(1.0/20, 1.0/160)

	mean := make(StateMean, stateDim)
	covariance := &StateCov{mat.NewDense(stateDim, stateDim, nil)}

	measurement := Measurement{0.1, -0.2, 1.0}

	kf.Initiate(mean, covariance, measurement)

	expectedMeanInit := StateMean{0.1, -0.2, 1.0, 0.0, 0.0, 0.0}

	if !floatsEqual(mean, expectedMeanInit, 1e-6) {
		t.Errorf("expected mean %v, got %v", expectedMeanInit, mean)
	}

	// position variance (2 * 0.05 * 1.0)^2, velocity variance
	// (10 * 0.00625 * 1.0)^2
	for i := 0; i < measDim; i++ {
		if got := covariance.At(i, i); got < 0.0099 || got > 0.0101 {
			t.Errorf("expected position variance 0.01 at %d, got %v", i, got)
		}

		if got := covariance.At(measDim+i, measDim+i); got < 0.00390 || got > 0.00391 {
			t.Errorf("expected velocity variance 0.00390625 at %d, got %v", i, got)
		}
	}

	kf.Predict(mean, covariance)

	// zero velocity leaves the mean in place
	if !floatsEqual(mean, expectedMeanInit, 1e-6) {
		t.Errorf("expected mean unchanged after predict, got %v", mean)
	}

	// p + v + qp with qp = (0.05 * 1.0)^2
	if got := covariance.At(0, 0); got < 0.016406 || got > 0.016407 {
		t.Errorf("expected predicted position variance 0.01640625, got %v", got)
	}

	// position velocity cross term equals the prior velocity variance
	if got := covariance.At(0, 3); got < 0.003906 || got > 0.003907 {
		t.Errorf("expected cross covariance 0.00390625, got %v", got)
	}

	// move the target along X by 5cm
	measurement = Measurement{0.15, -0.2, 1.0}

	if err := kf.Update(mean, covariance, measurement); err != nil {
		t.Fatalf("failed to update: %v", err)
	}

	// gain a/(a+r) = 0.01640625/0.01890625 on position and b/(a+r) on
	// velocity applied to the 0.05 innovation
	expectedMeanUpdate := StateMean{0.14338843, -0.2, 1.0, 0.01033058, 0.0, 0.0}

	if !floatsEqual(mean, expectedMeanUpdate, 1e-5) {
		t.Errorf("expected mean %v, got %v", expectedMeanUpdate, mean)
	}

	// the update must contract the position uncertainty
	if got := covariance.At(0, 0); got >= 0.01640625 {
		t.Errorf("expected position variance below 0.01640625, got %v", got)
	}
}

// TestKalmanFilterDepthFloor checks close targets use the floored noise
// scaling depth
func TestKalmanFilterDepthFloor(t *testing.T) {

	kf := NewKalmanFilter(1.0/20, 1.0/160)

	mean := make(StateMean, stateDim)
	covariance := &StateCov{mat.NewDense(stateDim, stateDim, nil)}

	kf.Initiate(mean, covariance, Measurement{0.0, 0.0, 0.01})

	// variance from the floored depth (2 * 0.05 * 0.1)^2
	if got := covariance.At(0, 0); got < 0.99e-4 || got > 1.01e-4 {
		t.Errorf("expected floored position variance 1e-4, got %v", got)
	}
}
