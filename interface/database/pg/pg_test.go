package pg_test

import (
	"time"

	"github.com/airbusgeo/alos2-ingester/common"
	db "github.com/airbusgeo/alos2-ingester/interface/database"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Ledger", func() {
	var err error
	start := time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC)
	auig2Job := common.IngestJob{
		ID:      "auig2-0000123456",
		Source:  common.SourceAUIG2,
		Archive: common.Archive{OrderID: "0000123456"},
	}
	saJob := common.IngestJob{
		ID:      "sentinelasia-ER-001",
		Source:  common.SourceSentinelAsia,
		Start:   &start,
		End:     &start,
		Archive: common.Archive{Extra: map[string]string{common.ExtraEORID: "ER-001"}},
	}
	datasetName := "ALOS2236492900-180918-UBSR2.1GUA"

	Describe("Creating ingestions", func() {
		It("should create the ingestions", func() {
			Expect(backend.CreateIngestion(ctx, auig2Job)).To(Succeed())
			Expect(backend.CreateIngestion(ctx, saJob)).To(Succeed())
		})

		It("should refuse an ingestion already created", func() {
			err = backend.CreateIngestion(ctx, auig2Job)
			Expect(err).To(BeAssignableToTypeOf(db.ErrAlreadyExists{}))
		})

		It("should load the ingestion", func() {
			ing, err := backend.Ingestion(ctx, saJob.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ing.Status).To(Equal(common.StatusNEW))
			Expect(ing.Source).To(Equal(common.SourceSentinelAsia))
			Expect(ing.Job.Start.Equal(start)).To(BeTrue())
			Expect(ing.Job.Archive.Extra).To(HaveKeyWithValue(common.ExtraEORID, "ER-001"))
		})

		It("should not find an unknown ingestion", func() {
			_, err = backend.Ingestion(ctx, "unknown")
			Expect(err).To(BeAssignableToTypeOf(db.ErrNotFound{}))
		})
	})

	Describe("Updating ingestions", func() {
		It("should count the retries", func() {
			msg := "connection reset by peer"
			Expect(backend.UpdateIngestion(ctx, auig2Job.ID, common.StatusDOWNLOADING, nil)).To(Succeed())
			Expect(backend.UpdateIngestion(ctx, auig2Job.ID, common.StatusRETRY, &msg)).To(Succeed())
			Expect(backend.UpdateIngestion(ctx, auig2Job.ID, common.StatusRETRY, &msg)).To(Succeed())
			ing, err := backend.Ingestion(ctx, auig2Job.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ing.Status).To(Equal(common.StatusRETRY))
			Expect(ing.Message).To(Equal(msg))
			Expect(ing.Retries).To(Equal(2))
		})

		It("should not update an unknown ingestion", func() {
			err = backend.UpdateIngestion(ctx, "unknown", common.StatusDONE, nil)
			Expect(err).To(BeAssignableToTypeOf(db.ErrNotFound{}))
		})

		It("should record the datasets in a transaction", func() {
			err = db.UnitOfWork(ctx, backend, func(tx db.LedgerTxBackend) error {
				if err := tx.SetDataset(ctx, db.Dataset{Name: datasetName, IngestionID: auig2Job.ID, Status: common.StatusDONE, Location: "gs://bucket/" + datasetName}); err != nil {
					return err
				}
				return tx.UpdateIngestion(ctx, auig2Job.ID, common.StatusDONE, nil)
			})
			Expect(err).NotTo(HaveOccurred())
			ing, err := backend.Ingestion(ctx, auig2Job.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ing.Status).To(Equal(common.StatusDONE))
			Expect(ing.Datasets).To(HaveLen(1))
			Expect(ing.Datasets[0].Location).To(Equal("gs://bucket/" + datasetName))
		})

		It("should rollback the transaction on error", func() {
			err = db.UnitOfWork(ctx, backend, func(tx db.LedgerTxBackend) error {
				if err := tx.UpdateIngestion(ctx, saJob.ID, common.StatusFAILED, nil); err != nil {
					return err
				}
				return tx.SetDataset(ctx, db.Dataset{Name: datasetName, IngestionID: "unknown", Status: common.StatusDONE})
			})
			Expect(err).To(HaveOccurred())
			ing, err := backend.Ingestion(ctx, saJob.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ing.Status).To(Equal(common.StatusNEW))
		})
	})

	Describe("Listing ingestions", func() {
		It("should filter the ingestions", func() {
			ings, err := backend.Ingestions(ctx, "auig2-*", "", "", 0, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(ings).To(HaveLen(1))
			Expect(ings[0].ID).To(Equal(auig2Job.ID))

			ings, err = backend.Ingestions(ctx, "", string(common.SourceSentinelAsia), "new", 0, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(ings).To(HaveLen(1))

			ings, err = backend.Ingestions(ctx, "", "", "", 1, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(ings).To(HaveLen(1))
			Expect(ings[0].ID).To(Equal(saJob.ID))

			_, err = backend.Ingestions(ctx, "", "", "unknown", 0, 0)
			Expect(err).To(HaveOccurred())
		})

		It("should count the ingestions per status", func() {
			status, err := backend.IngestionsStatus(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(db.Status{New: 1, Done: 1}))
			Expect(status.Total()).To(BeEquivalentTo(2))
		})
	})

	Describe("Deleting ingestions", func() {
		It("should delete the ingestion and its datasets", func() {
			Expect(backend.DeleteIngestion(ctx, auig2Job.ID)).To(Succeed())
			_, err = backend.Dataset(ctx, datasetName)
			Expect(err).To(BeAssignableToTypeOf(db.ErrNotFound{}))
		})
	})
})
