// Package homography estimates planar projective transforms from point
// correspondences with the normalized direct linear transform, and
// evaluates them by reprojection.
//
// Both point sets are first moved to centroid (0,0) with mean distance √2.
// The 2N×9 measurement matrix built from the normalized pairs is factorized
// with a full SVD; the right singular vector of the smallest singular value
// is the normalized homography, which is then mapped back to the original
// coordinates and scale-fixed.
//
// All functions are pure and safe for concurrent use.
package homography
