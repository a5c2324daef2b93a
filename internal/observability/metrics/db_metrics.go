package metrics

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"freight-cloud/internal/query"
)

func registerDBMetrics(db *mongo.Database, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "offers_active",
			Help: "Active offer documents",
		},
		func() float64 {
			return countDocuments(db, logger, query.CollectionOffers, bson.M{"activity": "Active"})
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "price_lists_active",
			Help: "Active price list documents",
		},
		func() float64 {
			return countDocuments(db, logger, query.CollectionPriceLists, bson.M{"activity": "Active"})
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "users_active",
			Help: "Active user accounts",
		},
		func() float64 {
			return countDocuments(db, logger, query.CollectionUsers, bson.M{"status": "Active"})
		},
	))
}

func countDocuments(db *mongo.Database, logger *log.Logger, collection string, filter bson.M) float64 {
	if db == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	count, err := db.Collection(collection).CountDocuments(ctx, filter)
	if err != nil {
		if logger != nil {
			logger.Printf("metrics count failed: collection=%s err=%v", collection, err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
