// Package clustering groups embedding vectors with HDBSCAN. Inputs are plain
// id'd vectors, so the same clusterer serves articles and stories.
package clustering

import (
	"fmt"
	"math"
	"reflect"

	"github.com/humilityai/hdbscan"
)

// MinClusterSize is the smallest group HDBSCAN may report.
const MinClusterSize = 3

// Point is one embedded entity.
type Point struct {
	ID     int
	Vector []float64
}

// Cluster is one dense group of points. Noise points appear in no cluster.
type Cluster struct {
	IDs      []int
	Centroid []float64
}

// ClusterEmpty reports a run that produced no clusters. Callers treat it as
// a silent skip, not a failure.
type ClusterEmpty struct {
	Points int
}

func (e *ClusterEmpty) Error() string {
	return fmt.Sprintf("no clusters found among %d points", e.Points)
}

// euclideanDistance is the metric the clusterer runs on.
func euclideanDistance(x1, x2 []float64) float64 {
	var sum float64
	for i := range x1 {
		d := x1[i] - x2[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Run clusters the points and returns the dense groups, discarding noise.
// Fewer than MinClusterSize points can never form a cluster.
func Run(points []Point) ([]Cluster, error) {
	if len(points) < MinClusterSize {
		return nil, &ClusterEmpty{Points: len(points)}
	}

	dataPoints := make([][]float64, len(points))
	for i, p := range points {
		dataPoints[i] = p.Vector
	}

	clustering, err := hdbscan.NewClustering(dataPoints, MinClusterSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create clustering: %w", err)
	}
	clustering = clustering.OutlierDetection()

	if err := clustering.Run(euclideanDistance, hdbscan.VarianceScore, true); err != nil {
		return nil, fmt.Errorf("clustering run failed: %w", err)
	}

	data := extractClusterData(clustering)
	clusters := make([]Cluster, 0, len(data))
	for _, cd := range data {
		if len(cd.Points) == 0 {
			continue
		}
		c := Cluster{Centroid: cd.Centroid}
		for _, idx := range cd.Points {
			if idx >= 0 && idx < len(points) {
				c.IDs = append(c.IDs, points[idx].ID)
			}
		}
		clusters = append(clusters, c)
	}

	if len(clusters) == 0 {
		return nil, &ClusterEmpty{Points: len(points)}
	}
	return clusters, nil
}

type clusterData struct {
	Centroid []float64
	Points   []int
}

// extractClusterData pulls the per-cluster point indices out of the library's
// Clustering struct. The cluster element type is unexported, so the fields
// are read through reflection.
func extractClusterData(clustering *hdbscan.Clustering) []clusterData {
	v := reflect.ValueOf(clustering).Elem()
	clustersField := v.FieldByName("Clusters")
	if !clustersField.IsValid() {
		return nil
	}

	result := make([]clusterData, clustersField.Len())
	for i := 0; i < clustersField.Len(); i++ {
		clusterValue := clustersField.Index(i)
		if clusterValue.Kind() == reflect.Ptr {
			clusterValue = clusterValue.Elem()
		}

		if f := clusterValue.FieldByName("Centroid"); f.IsValid() && f.Kind() == reflect.Slice {
			centroid := make([]float64, f.Len())
			for j := 0; j < f.Len(); j++ {
				centroid[j] = f.Index(j).Float()
			}
			result[i].Centroid = centroid
		}
		if f := clusterValue.FieldByName("Points"); f.IsValid() && f.Kind() == reflect.Slice {
			pointIndices := make([]int, f.Len())
			for j := 0; j < f.Len(); j++ {
				pointIndices[j] = int(f.Index(j).Int())
			}
			result[i].Points = pointIndices
		}
	}
	return result
}
