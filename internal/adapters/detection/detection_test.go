package detection

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/finishline/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var box = model.BoundingBox{Left: 0.1, Top: 0.1, Width: 0.2, Height: 0.3}

func newService(t *testing.T) (*httptest.Server, *[]SearchRequest) {
	t.Helper()
	var searches []SearchRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /faces/detect", func(w http.ResponseWriter, r *http.Request) {
		var req imageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ImageRef == "missing.jpg" {
			http.Error(w, "no such object", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"faces": []map[string]any{{
				"bounding_box": box,
				"attributes":   map[string]any{"confidence": 99.1, "age_range": map[string]int{"low": 25, "high": 35}},
			}},
		})
	})
	mux.HandleFunc("POST /faces/search", func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		searches = append(searches, req)
		if req.BoundingBox.Width < 0.05 {
			http.Error(w, "face too small", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"matches": []model.FaceMatch{{AthleteID: "ath-1", Similarity: 91.5}},
		})
	})
	mux.HandleFunc("POST /text/detect", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "secret" {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"detections": []model.TextLine{{Text: "1234", Confidence: 97, Kind: model.TextWordKind}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &searches
}

func TestClient(t *testing.T) {
	Convey("Given a detection service", t, func() {
		srv, searches := newService(t)
		client, err := NewClient(srv.URL+"/", WithTimeout(2*time.Second), WithHeader("X-Api-Key", "secret"))
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("When detecting faces", func() {
			faces, err := client.DetectFaces(ctx, "img.jpg")

			Convey("Then boxes and attributes are decoded without a match", func() {
				So(err, ShouldBeNil)
				So(len(faces), ShouldEqual, 1)
				So(faces[0].BoundingBox, ShouldResemble, box)
				So(faces[0].Attributes.AgeRange.High, ShouldEqual, 35)
				So(faces[0].Match, ShouldBeNil)
			})
		})

		Convey("When searching a face with default parameters", func() {
			matches, err := client.SearchFace(ctx, SearchRequest{ImageRef: "img.jpg", BoundingBox: box, Collection: "athletes"})

			Convey("Then threshold 70 and one result are requested", func() {
				So(err, ShouldBeNil)
				So(matches[0].AthleteID, ShouldEqual, "ath-1")
				So((*searches)[0].Threshold, ShouldEqual, 70)
				So((*searches)[0].MaxResults, ShouldEqual, 1)
				So((*searches)[0].Collection, ShouldEqual, "athletes")
			})
		})

		Convey("When the service refuses a search", func() {
			_, err := client.SearchFace(ctx, SearchRequest{ImageRef: "img.jpg", BoundingBox: model.BoundingBox{Width: 0.01, Height: 0.01}})
			So(errors.Is(err, ErrInvalidParameter), ShouldBeTrue)
		})

		Convey("When the image is unknown", func() {
			_, err := client.DetectFaces(ctx, "missing.jpg")
			So(errors.Is(err, ErrImageNotFound), ShouldBeTrue)
		})

		Convey("When detecting text with the configured header", func() {
			lines, err := client.DetectText(ctx, "img.jpg")
			So(err, ShouldBeNil)
			So(lines[0].Text, ShouldEqual, "1234")
		})

		Convey("When the service fails", func() {
			bare, err := NewClient(srv.URL)
			So(err, ShouldBeNil)
			_, err = bare.DetectText(ctx, "img.jpg")
			So(errors.Is(err, ErrUnavailable), ShouldBeTrue)
		})

		Convey("When the service is unreachable", func() {
			srv.Close()
			_, err := client.DetectFaces(ctx, "img.jpg")
			So(errors.Is(err, ErrUnavailable), ShouldBeTrue)
		})
	})

	Convey("Given an empty base url", t, func() {
		_, err := NewClient("  ")
		So(errors.Is(err, ErrInvalidParameter), ShouldBeTrue)
	})
}

func TestStaticDetector(t *testing.T) {
	Convey("Given fixtures loaded from YAML", t, func() {
		path := filepath.Join(t.TempDir(), "fixtures.yaml")
		doc := `
finish-001.jpg:
  faces:
    - box: {left: 0.1, top: 0.1, width: 0.2, height: 0.3}
      athlete_id: ath-1
      similarity: 88
      confidence: 99
    - box: {left: 0.5, top: 0.1, width: 0.2, height: 0.3}
      athlete_id: ath-2
      similarity: 40
  text:
    - {text: "101", confidence: 95}
    - {text: "Bib 101 Berlin", confidence: 80, kind: LINE}
`
		So(os.WriteFile(path, []byte(doc), 0o600), ShouldBeNil)
		det, err := LoadStaticDetector(path)
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("Then faces and text come back from the fixture", func() {
			faces, err := det.DetectFaces(ctx, "finish-001.jpg")
			So(err, ShouldBeNil)
			So(len(faces), ShouldEqual, 2)

			lines, err := det.DetectText(ctx, "finish-001.jpg")
			So(err, ShouldBeNil)
			So(lines[0].Kind, ShouldEqual, model.TextWordKind)
			So(lines[1].Kind, ShouldEqual, model.TextLineKind)
		})

		Convey("And searches honour the threshold", func() {
			faces, _ := det.DetectFaces(ctx, "finish-001.jpg")
			hit, err := det.SearchFace(ctx, SearchRequest{ImageRef: "finish-001.jpg", BoundingBox: faces[0].BoundingBox})
			So(err, ShouldBeNil)
			So(hit[0].AthleteID, ShouldEqual, "ath-1")

			miss, err := det.SearchFace(ctx, SearchRequest{ImageRef: "finish-001.jpg", BoundingBox: faces[1].BoundingBox})
			So(err, ShouldBeNil)
			So(miss, ShouldBeEmpty)
		})

		Convey("And unknown images and bad boxes are errors", func() {
			_, err := det.DetectFaces(ctx, "other.jpg")
			So(errors.Is(err, ErrImageNotFound), ShouldBeTrue)
			_, err = det.SearchFace(ctx, SearchRequest{ImageRef: "finish-001.jpg"})
			So(errors.Is(err, ErrInvalidParameter), ShouldBeTrue)
		})

		Convey("And fixtures can be replaced at runtime", func() {
			det.Set("other.jpg", Fixture{})
			faces, err := det.DetectFaces(ctx, "other.jpg")
			So(err, ShouldBeNil)
			So(faces, ShouldBeEmpty)
		})
	})
}
