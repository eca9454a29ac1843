package workflow_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/airbusgeo/alos2-ingester/common"
	db "github.com/airbusgeo/alos2-ingester/interface/database"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Workflow", func() {
	datasetName := "ALOS2236492900-180918-UBSR2.1GUA"
	auig2Job := common.IngestJob{
		ID:      "auig2-0000123456",
		Source:  common.SourceAUIG2,
		Archive: common.Archive{OrderID: "0000123456"},
	}

	Describe("Submitting jobs", func() {
		BeforeEach(jobQueue.reset)

		It("should record and publish the job", func() {
			id, err := wf.Submit(ctx, auig2Job)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(auig2Job.ID))
			Expect(jobQueue.messages).To(HaveLen(1))
			job := common.IngestJob{}
			Expect(json.Unmarshal(jobQueue.messages[0], &job)).To(Succeed())
			Expect(job.Archive.OrderID).To(Equal("0000123456"))

			ing, err := wf.Ingestion(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(ing.Status).To(Equal(common.StatusNEW))
		})

		It("should generate an id", func() {
			id, err := wf.Submit(ctx, common.IngestJob{Source: common.SourceURL, Archive: common.Archive{URL: "https://host/file.zip"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(HavePrefix("url-"))
		})

		It("should refuse a job already submitted", func() {
			_, err := wf.Submit(ctx, auig2Job)
			Expect(errors.As(err, &db.ErrAlreadyExists{})).To(BeTrue())
			Expect(jobQueue.messages).To(BeEmpty())
		})

		It("should refuse an invalid job", func() {
			_, err := wf.Submit(ctx, common.IngestJob{Source: common.SourceGPortal})
			Expect(err).To(HaveOccurred())
		})

		It("should not record the job if it cannot be published", func() {
			jobQueue.err = errors.New("queue unavailable")
			_, err := wf.Submit(ctx, common.IngestJob{ID: "unpublished", Source: common.SourceURL, Archive: common.Archive{URL: "https://host/file.zip"}})
			Expect(err).To(HaveOccurred())
			_, err = wf.Ingestion(ctx, "unpublished")
			Expect(errors.As(err, &db.ErrNotFound{})).To(BeTrue())
		})
	})

	Describe("Handling the results", func() {
		BeforeEach(jobQueue.reset)

		It("should update the status", func() {
			Expect(wf.ResultHandler(ctx, common.Result{JobID: auig2Job.ID, Status: common.StatusRETRY, Message: "timeout"})).To(Succeed())
			ing, err := wf.Ingestion(ctx, auig2Job.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ing.Status).To(Equal(common.StatusRETRY))
			Expect(ing.Message).To(Equal("timeout"))
			Expect(ing.Retries).To(Equal(1))
		})

		It("should retry the ingestion", func() {
			done, err := wf.RetryIngestion(ctx, auig2Job.ID, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeTrue())
			Expect(jobQueue.messages).To(HaveLen(1))
			ing, _ := wf.Ingestion(ctx, auig2Job.ID)
			Expect(ing.Status).To(Equal(common.StatusNEW))
		})

		It("should not retry an ingestion in progress", func() {
			done, err := wf.RetryIngestion(ctx, auig2Job.ID, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeFalse())
		})

		It("should record the datasets of the final result", func() {
			Expect(wf.ResultHandler(ctx, common.Result{JobID: auig2Job.ID, Status: common.StatusDONE, Datasets: []string{datasetName}})).To(Succeed())
			ds, err := wf.Dataset(ctx, datasetName)
			Expect(err).NotTo(HaveOccurred())
			Expect(ds.IngestionID).To(Equal(auig2Job.ID))
			Expect(ds.Status).To(Equal(common.StatusDONE))
		})

		It("should not update a final status", func() {
			Expect(wf.ResultHandler(ctx, common.Result{JobID: auig2Job.ID, Status: common.StatusFAILED})).To(Succeed())
			ing, _ := wf.Ingestion(ctx, auig2Job.ID)
			Expect(ing.Status).To(Equal(common.StatusDONE))
		})

		It("should ignore the results of unknown ingestions", func() {
			Expect(wf.ResultHandler(ctx, common.Result{JobID: "unknown", Status: common.StatusDONE, Datasets: []string{"x"}})).To(Succeed())
		})
	})

	Describe("Serving the ledger", func() {
		var handler http.Handler
		BeforeEach(func() {
			jobQueue.reset()
			handler = wf.NewHandler()
		})
		serve := func(method, url, body string) *httptest.ResponseRecorder {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(method, url, strings.NewReader(body)))
			return rec
		}

		It("should submit an ingestion", func() {
			rec := serve("POST", "/ingestion", `{"id":"gportal-1","source":"gportal","archive":{"name":"","url":"https://gportal.jaxa.jp/file.zip"}}`)
			Expect(rec.Code).To(Equal(201))
			Expect(rec.Body.String()).To(ContainSubstring(`"id":"gportal-1"`))
			Expect(serve("POST", "/ingestion", `{"source":"gportal"}`).Code).To(Equal(400))
			Expect(serve("POST", "/ingestion", `{"unknown":true}`).Code).To(Equal(400))
			Expect(serve("POST", "/ingestion", `{"id":"gportal-1","source":"gportal","archive":{"name":"","url":"https://gportal.jaxa.jp/file.zip"}}`).Code).To(Equal(409))
		})

		It("should get an ingestion", func() {
			rec := serve("GET", "/ingestion/"+auig2Job.ID, "")
			Expect(rec.Code).To(Equal(200))
			ing := db.Ingestion{}
			Expect(json.Unmarshal(rec.Body.Bytes(), &ing)).To(Succeed())
			Expect(ing.Status).To(Equal(common.StatusDONE))
			Expect(ing.Datasets).To(HaveLen(1))
			Expect(serve("GET", "/ingestion/unknown", "").Code).To(Equal(404))
		})

		It("should list the ingestions", func() {
			rec := serve("GET", "/ingestions?source=gportal", "")
			Expect(rec.Code).To(Equal(200))
			var ings []db.Ingestion
			Expect(json.Unmarshal(rec.Body.Bytes(), &ings)).To(Succeed())
			Expect(ings).To(HaveLen(1))
			Expect(ings[0].ID).To(Equal("gportal-1"))

			rec = serve("GET", "/ingestions?status=done&pattern=auig2-*", "")
			Expect(json.Unmarshal(rec.Body.Bytes(), &ings)).To(Succeed())
			Expect(ings).To(HaveLen(1))

			Expect(serve("GET", "/ingestions?status=unknown", "").Code).To(Equal(400))
			Expect(serve("GET", "/ingestions?page=x", "").Code).To(Equal(400))
		})

		It("should count the ingestions", func() {
			rec := serve("GET", "/ingestions/status", "")
			status := db.Status{}
			Expect(json.Unmarshal(rec.Body.Bytes(), &status)).To(Succeed())
			Expect(status.Done).To(Equal(int64(1)))
			Expect(serve("GET", "/status", "").Body.String()).To(ContainSubstring("done:         1"))
		})

		It("should fail, force and retry an ingestion", func() {
			Expect(serve("PUT", "/ingestion/gportal-1/fail", "").Code).To(Equal(200))
			Expect(serve("PUT", "/ingestion/gportal-1/fail", "").Code).To(Equal(204))
			Expect(serve("PUT", "/ingestion/gportal-1/force/downloading", "").Code).To(Equal(200))
			Expect(serve("PUT", "/ingestion/gportal-1/force/unknown", "").Code).To(Equal(400))
			Expect(serve("PUT", "/ingestion/gportal-1/retry", "").Code).To(Equal(204))
			Expect(serve("PUT", "/ingestion/gportal-1/retry/force", "").Code).To(Equal(200))
			Expect(jobQueue.messages).To(HaveLen(1))
			Expect(serve("PUT", "/ingestion/unknown/fail", "").Code).To(Equal(404))
		})

		It("should get a dataset", func() {
			Expect(serve("GET", "/dataset/"+datasetName, "").Code).To(Equal(200))
			Expect(serve("GET", "/dataset/unknown", "").Code).To(Equal(404))
		})

		It("should delete an ingestion", func() {
			Expect(serve("DELETE", "/ingestion/"+auig2Job.ID, "").Code).To(Equal(204))
			Expect(serve("GET", "/dataset/"+datasetName, "").Code).To(Equal(404))
		})
	})
})
