// Package tracker maintains target identity and tracking status across
// frames.  Each live track carries a constant velocity Kalman filter over
// the target's world position, observations are associated to tracks per
// target identity with a linear assignment solve, and status transitions
// are published to subscribers.
package tracker

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const (
	// stateDim is the filter state size, position and velocity in three
	// axes
	stateDim = 6
	// measDim is the measurement size, a world position
	measDim = 3
	// minDepth floors the depth used to scale process noise so close
	// targets keep a sane noise level
	minDepth = 0.1
)

// Measurement represents an observed world position in meters
type Measurement []float32

// StateMean represents a 1x6 state vector using a slice of float32
type StateMean []float32

// StateCov represents a 6x6 state covariance matrix
type StateCov struct {
	*mat.Dense
}

// KalmanFilter is a constant velocity filter over a target's world
// position.  Process and measurement noise scale with target depth since
// pose estimates of distant targets are less certain
type KalmanFilter struct {
	stdWeightPosition float32
	stdWeightVelocity float32
	motionMat         *mat.Dense
	updateMat         *mat.Dense
}

// NewKalmanFilter initializes and returns a new KalmanFilter
func NewKalmanFilter(stdWeightPosition, stdWeightVelocity float32) *KalmanFilter {

	dt := 1.0

	// constant velocity motion model, position advances by one frame of
	// velocity
	motionMat := mat.NewDense(stateDim, stateDim, nil)

	for i := 0; i < stateDim; i++ {
		motionMat.Set(i, i, 1.0)
	}

	for i := 0; i < measDim; i++ {
		motionMat.Set(i, measDim+i, dt)
	}

	// measurement model observes position only
	updateMat := mat.NewDense(measDim, stateDim, nil)

	for i := 0; i < measDim; i++ {
		updateMat.Set(i, i, 1.0)
	}

	return &KalmanFilter{
		stdWeightPosition: stdWeightPosition,
		stdWeightVelocity: stdWeightVelocity,
		motionMat:         motionMat,
		updateMat:         updateMat,
	}
}

// depthScale returns the noise scaling depth for the given Z coordinate
func depthScale(z float32) float32 {

	if z < minDepth {
		return minDepth
	}

	return z
}

// Initiate initializes the state mean and covariance from the first
// measurement
func (kf *KalmanFilter) Initiate(mean StateMean, covariance *StateCov,
	measurement Measurement) {

	copy(mean[:measDim], measurement[:measDim])

	// velocity components start at rest
	for i := measDim; i < stateDim; i++ {
		mean[i] = 0.0
	}

	d := depthScale(measurement[2])

	std := make(StateMean, stateDim)

	for i := 0; i < measDim; i++ {
		std[i] = 2 * kf.stdWeightPosition * d
		std[measDim+i] = 10 * kf.stdWeightVelocity * d
	}

	for i := 0; i < stateDim; i++ {
		covariance.Set(i, i, float64(std[i]*std[i]))
	}
}

// Predict advances the state mean and covariance by one frame
func (kf *KalmanFilter) Predict(mean StateMean, covariance *StateCov) {

	d := depthScale(mean[2])

	std := make(StateMean, stateDim)

	for i := 0; i < measDim; i++ {
		std[i] = kf.stdWeightPosition * d
		std[measDim+i] = kf.stdWeightVelocity * d
	}

	motionCov := mat.NewDense(stateDim, stateDim, nil)

	for i := 0; i < stateDim; i++ {
		motionCov.Set(i, i, float64(std[i]*std[i]))
	}

	// advance the mean through the motion model
	meanVec := mat.NewVecDense(stateDim, nil)

	for i := 0; i < stateDim; i++ {
		meanVec.SetVec(i, float64(mean[i]))
	}

	meanMat := mat.NewDense(stateDim, 1, meanVec.RawVector().Data)
	meanMat.Mul(kf.motionMat, meanMat)

	for i := 0; i < stateDim; i++ {
		mean[i] = float32(meanMat.At(i, 0))
	}

	// advance the covariance and add the process noise
	cov := covariance.Dense
	cov.Mul(kf.motionMat, cov)
	cov.Mul(cov, kf.motionMat.T())
	cov.Add(cov, motionCov)
}

// Update corrects the state mean and covariance with a new measurement
func (kf *KalmanFilter) Update(mean StateMean, covariance *StateCov,
	measurement Measurement) error {

	projectedMean, projectedCov := kf.project(mean, covariance)

	// Kalman gain via Cholesky factorization of the innovation covariance
	chol := mat.Cholesky{}

	if ok := chol.Factorize(projectedCov); !ok {
		return errors.New("failed to factorize projected covariance")
	}

	b := mat.NewDense(stateDim, measDim, nil)
	b.Mul(covariance.Dense, kf.updateMat.T())

	var kalmanGain mat.Dense
	err := chol.SolveTo(&kalmanGain, b.T())

	if err != nil {
		return fmt.Errorf("failed to compute kalman gain: %w", err)
	}

	// measurement residual
	innovation := make([]float64, measDim)

	for i := 0; i < measDim; i++ {
		innovation[i] = float64(measurement[i] - projectedMean[i])
	}

	innovationVec := mat.NewVecDense(measDim, innovation)
	tmp := mat.NewVecDense(stateDim, nil)
	tmp.MulVec(kalmanGain.T(), innovationVec)

	for i := 0; i < stateDim; i++ {
		mean[i] += float32(tmp.AtVec(i))
	}

	// correct the covariance
	temp := mat.NewDense(stateDim, measDim, nil)
	temp.Mul(kalmanGain.T(), projectedCov)

	temp2 := mat.NewDense(stateDim, stateDim, nil)
	temp2.Mul(temp, &kalmanGain)

	newCov := mat.NewDense(stateDim, stateDim, nil)
	newCov.Sub(covariance.Dense, temp2)

	covariance.Dense = newCov

	return nil
}

// project maps the state mean and covariance to measurement space adding
// the measurement noise
func (kf *KalmanFilter) project(mean StateMean,
	covariance *StateCov) (Measurement, *mat.SymDense) {

	d := depthScale(mean[2])

	// measurement noise covariance
	innovationCov := mat.NewSymDense(measDim, nil)

	for i := 0; i < measDim; i++ {
		std := kf.stdWeightPosition * d
		innovationCov.SetSym(i, i, float64(std*std))
	}

	// project the mean
	meanData := make([]float64, stateDim)

	for i, v := range mean {
		meanData[i] = float64(v)
	}

	projectedMeanVec := mat.NewVecDense(measDim, nil)
	projectedMeanVec.MulVec(kf.updateMat, mat.NewVecDense(stateDim, meanData))

	// project the covariance
	temp := mat.NewDense(measDim, stateDim, nil)
	temp.Mul(kf.updateMat, covariance.Dense)

	temp2 := mat.NewDense(measDim, measDim, nil)
	temp2.Mul(temp, kf.updateMat.T())

	projectedCov := mat.NewSymDense(measDim, nil)

	for i := 0; i < measDim; i++ {
		for j := 0; j < measDim; j++ {
			projectedCov.SetSym(i, j, temp2.At(i, j))
		}
	}

	projectedCov.AddSym(projectedCov, innovationCov)

	projectedMean := make(Measurement, measDim)

	for i := 0; i < measDim; i++ {
		projectedMean[i] = float32(projectedMeanVec.AtVec(i))
	}

	return projectedMean, projectedCov
}
