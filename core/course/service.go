package course

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/identity"
)

var (
	errNoBlobStore = errors.New("no blob store configured")

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

// Service manages the Course -> SubCourse tree.
// Reads are filtered by the caller's grant, writes are reserved to administrators.
type Service struct {
	store    core.DataStore
	ids      *identity.Service
	blobs    core.BlobStore
	validate *validator.Validate
}

func NewService(store core.DataStore, ids *identity.Service, blobs core.BlobStore, validate *validator.Validate) *Service {
	return &Service{store: store, ids: ids, blobs: blobs, validate: validate}
}

// Reads

// ListCourses returns the courses the actor can access, each with its accessible sub-courses.
func (svc *Service) ListCourses(ctx context.Context, actor string) ([]Course, error) {
	grant, err := svc.ids.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	courses, err := svc.AllCourses(ctx)
	if err != nil {
		return nil, err
	}
	accessible := make([]Course, 0, len(courses))
	for _, c := range courses {
		if identity.CanAccess(grant, c.ID, "") {
			accessible = append(accessible, filterSubCourses(grant, c))
		}
	}
	return accessible, nil
}

func (svc *Service) GetCourse(ctx context.Context, actor, courseID string) (Course, error) {
	grant, err := svc.ids.Authorize(ctx, actor, courseID, "")
	if err != nil {
		return Course{}, err
	}
	c, err := svc.loadCourse(ctx, courseID)
	if err != nil {
		return Course{}, err
	}
	return filterSubCourses(grant, c), nil
}

func (svc *Service) GetSubCourse(ctx context.Context, actor, courseID, subCourseID string) (SubCourse, error) {
	if _, err := svc.ids.Authorize(ctx, actor, courseID, subCourseID); err != nil {
		return SubCourse{}, err
	}
	return svc.LoadSubCourse(ctx, courseID, subCourseID)
}

// LoadSubCourse reads a sub-course without any access check.
func (svc *Service) LoadSubCourse(ctx context.Context, courseID, subCourseID string) (SubCourse, error) {
	var sc SubCourse
	if err := svc.store.Get(ctx, core.SubCoursePath(courseID, subCourseID), &sc); err != nil {
		return SubCourse{}, core.StoreError(err, "getting sub-course")
	}
	sc.ID = subCourseID
	sc.CourseID = courseID
	sc.normalize()
	return sc, nil
}

// AllCourses reads the whole course tree in one scan, without any access check.
func (svc *Service) AllCourses(ctx context.Context) ([]Course, error) {
	nodes, err := svc.store.Tree(ctx, core.CoursesRoot)
	if err != nil {
		return nil, core.StoreError(err, "listing courses")
	}

	byID := make(map[string]*Course)
	order := make([]string, 0)
	subs := make(map[string][]SubCourse)
	for _, node := range nodes {
		segments := core.SplitPath(node.Key)
		switch {
		case len(segments) == 1:
			var c Course
			if err := node.Decode(&c); err != nil {
				return nil, err
			}
			c.ID = segments[0]
			c.SubCourses = nil
			byID[c.ID] = &c
			order = append(order, c.ID)
		case len(segments) == 3 && segments[1] == core.SubCoursesSegment:
			var sc SubCourse
			if err := node.Decode(&sc); err != nil {
				return nil, err
			}
			sc.ID = segments[2]
			sc.CourseID = segments[0]
			sc.normalize()
			subs[sc.CourseID] = append(subs[sc.CourseID], sc)
		}
	}

	courses := make([]Course, 0, len(order))
	for _, id := range order {
		c := byID[id]
		c.SubCourses = sortSubCourses(subs[id])
		courses = append(courses, *c)
	}
	sort.SliceStable(courses, func(i, j int) bool { return courses[i].CreatedAt.Before(courses[j].CreatedAt) })
	return courses, nil
}

func (svc *Service) loadCourse(ctx context.Context, courseID string) (Course, error) {
	var c Course
	if err := svc.store.Get(ctx, core.CoursePath(courseID), &c); err != nil {
		return Course{}, core.StoreError(err, "getting course")
	}
	c.ID = courseID

	nodes, err := svc.store.List(ctx, core.SubCoursesPath(courseID))
	if err != nil {
		return Course{}, core.StoreError(err, "listing sub-courses")
	}
	subs := make([]SubCourse, 0, len(nodes))
	for _, node := range nodes {
		var sc SubCourse
		if err := node.Decode(&sc); err != nil {
			return Course{}, err
		}
		sc.ID = node.Key
		sc.CourseID = courseID
		sc.normalize()
		subs = append(subs, sc)
	}
	c.SubCourses = sortSubCourses(subs)
	return c, nil
}

func sortSubCourses(subs []SubCourse) []SubCourse {
	if subs == nil {
		return []SubCourse{}
	}
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].CreatedAt.Before(subs[j].CreatedAt) })
	return subs
}

func filterSubCourses(grant identity.RoleGrant, c Course) Course {
	subs := make([]SubCourse, 0, len(c.SubCourses))
	for _, sc := range c.SubCourses {
		if identity.CanAccess(grant, c.ID, sc.ID) {
			subs = append(subs, sc)
		}
	}
	c.SubCourses = subs
	return c
}

// Writes

func (svc *Service) CreateCourse(ctx context.Context, actor string, nc NewCourse) (Course, error) {
	if _, err := svc.ids.RequireAdmin(ctx, actor); err != nil {
		return Course{}, err
	}
	nc.clean()
	if err := svc.validate.Struct(nc); err != nil {
		return Course{}, err
	}

	now := nowFunc()
	c := Course{
		ID:         uuid.New().String(),
		Name:       nc.Name,
		Thumbnail:  nc.Thumbnail,
		CreatedAt:  now,
		UpdatedAt:  now,
		SubCourses: []SubCourse{},
	}
	if err := svc.store.Set(ctx, core.CoursePath(c.ID), header(c)); err != nil {
		return Course{}, core.StoreError(err, "creating course")
	}
	return c, nil
}

func (svc *Service) UpdateCourse(ctx context.Context, actor, courseID string, uc UpdateCourse) (Course, error) {
	if _, err := svc.ids.RequireAdmin(ctx, actor); err != nil {
		return Course{}, err
	}
	c, err := svc.loadCourse(ctx, courseID)
	if err != nil {
		return Course{}, err
	}
	uc.clean(c)
	if err = svc.validate.Struct(uc); err != nil {
		return Course{}, err
	}

	c.Name = uc.Name
	c.Thumbnail = uc.Thumbnail
	c.UpdatedAt = nowFunc()
	if err = svc.store.Set(ctx, core.CoursePath(courseID), header(c)); err != nil {
		return Course{}, core.StoreError(err, "updating course")
	}
	return c, nil
}

// DeleteCourse removes a course with its sub-courses and every grant entry referencing it, in one write.
func (svc *Service) DeleteCourse(ctx context.Context, actor, courseID string) error {
	if _, err := svc.ids.RequireAdmin(ctx, actor); err != nil {
		return err
	}
	var c Course
	if err := svc.store.Get(ctx, core.CoursePath(courseID), &c); err != nil {
		return core.StoreError(err, "getting course")
	}

	writes, err := svc.ids.GrantCleanup(ctx, courseID, "")
	if err != nil {
		return err
	}
	writes[core.CoursePath(courseID)] = nil
	return core.StoreError(svc.store.Update(ctx, writes), "deleting course")
}

func (svc *Service) CreateSubCourse(ctx context.Context, actor, courseID string, nsc NewSubCourse) (SubCourse, error) {
	if _, err := svc.ids.RequireAdmin(ctx, actor); err != nil {
		return SubCourse{}, err
	}
	var c Course
	if err := svc.store.Get(ctx, core.CoursePath(courseID), &c); err != nil {
		return SubCourse{}, core.StoreError(err, "getting course")
	}
	nsc.Name = core.CleanString(nsc.Name)
	if err := svc.validate.Struct(nsc); err != nil {
		return SubCourse{}, err
	}

	now := nowFunc()
	sc := SubCourse{
		ID:        uuid.New().String(),
		CourseID:  courseID,
		Name:      nsc.Name,
		Videos:    withIDs(nsc.Videos),
		Images:    withIDs(nsc.Images),
		PDFs:      withIDs(nsc.PDFs),
		Questions: nsc.Questions,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sc.normalize()
	if err := svc.store.Set(ctx, core.SubCoursePath(courseID, sc.ID), sc); err != nil {
		return SubCourse{}, core.StoreError(err, "creating sub-course")
	}
	return sc, nil
}

func (svc *Service) UpdateSubCourse(ctx context.Context, actor, courseID, subCourseID string, usc UpdateSubCourse) (SubCourse, error) {
	usc.Name = core.CleanString(usc.Name)
	if err := svc.validate.Struct(usc); err != nil {
		return SubCourse{}, err
	}
	return svc.mutateSubCourse(ctx, actor, courseID, subCourseID, func(sc *SubCourse) error {
		sc.Name = usc.Name
		return nil
	})
}

// DeleteSubCourse removes a sub-course and the grant entries referencing it, in one write.
// Submissions are kept for reporting.
func (svc *Service) DeleteSubCourse(ctx context.Context, actor, courseID, subCourseID string) error {
	if _, err := svc.ids.RequireAdmin(ctx, actor); err != nil {
		return err
	}
	if _, err := svc.LoadSubCourse(ctx, courseID, subCourseID); err != nil {
		return err
	}

	writes, err := svc.ids.GrantCleanup(ctx, courseID, subCourseID)
	if err != nil {
		return err
	}
	writes[core.SubCoursePath(courseID, subCourseID)] = nil
	return core.StoreError(svc.store.Update(ctx, writes), "deleting sub-course")
}

// SetQuestions replaces the quiz of a sub-course.
func (svc *Service) SetQuestions(ctx context.Context, actor, courseID, subCourseID string, questions []Question) (SubCourse, error) {
	if err := svc.validate.Struct(questionList{Questions: questions}); err != nil {
		return SubCourse{}, err
	}
	return svc.mutateSubCourse(ctx, actor, courseID, subCourseID, func(sc *SubCourse) error {
		sc.Questions = append([]Question{}, questions...)
		return nil
	})
}

func (svc *Service) AddQuestion(ctx context.Context, actor, courseID, subCourseID string, q Question) (SubCourse, error) {
	if err := svc.validate.Struct(q); err != nil {
		return SubCourse{}, err
	}
	return svc.mutateSubCourse(ctx, actor, courseID, subCourseID, func(sc *SubCourse) error {
		sc.Questions = append(sc.Questions, q)
		return nil
	})
}

// AddMedia attaches an asset. Attaching a url already present is a no-op.
func (svc *Service) AddMedia(ctx context.Context, actor, courseID, subCourseID string, kind MediaKind, ref MediaRef) (SubCourse, error) {
	if _, ok := ParseMediaKind(string(kind)); !ok {
		return SubCourse{}, core.NewValidationError(errors.Errorf("unknown media kind %q", kind))
	}
	ref.URL = core.CleanString(ref.URL)
	ref.Title = core.CleanString(ref.Title)
	if err := svc.validate.Struct(ref); err != nil {
		return SubCourse{}, err
	}
	if ref.ID == "" {
		ref.ID = uuid.New().String()
	}
	return svc.mutateSubCourse(ctx, actor, courseID, subCourseID, func(sc *SubCourse) error {
		media := sc.media(kind)
		for _, m := range *media {
			if m.URL == ref.URL {
				return nil
			}
		}
		*media = append(*media, ref)
		return nil
	})
}

func (svc *Service) RemoveMedia(ctx context.Context, actor, courseID, subCourseID string, kind MediaKind, mediaID string) (SubCourse, error) {
	if _, ok := ParseMediaKind(string(kind)); !ok {
		return SubCourse{}, core.NewValidationError(errors.Errorf("unknown media kind %q", kind))
	}
	var removed MediaRef
	sc, err := svc.mutateSubCourse(ctx, actor, courseID, subCourseID, func(sc *SubCourse) error {
		media := sc.media(kind)
		for i, m := range *media {
			if m.ID == mediaID {
				removed = m
				*media = append((*media)[:i], (*media)[i+1:]...)
				return nil
			}
		}
		return errors.Wrapf(core.ErrNotFound, "media %s", mediaID)
	})
	if err != nil {
		return SubCourse{}, err
	}
	if removed.BlobPath != "" && svc.blobs != nil {
		// the reference is gone already; a blob left behind is unreachable
		_ = svc.blobs.Delete(ctx, removed.BlobPath)
	}
	return sc, nil
}

// UploadMedia stores a file in the blob store and attaches it to the sub-course.
func (svc *Service) UploadMedia(
	ctx context.Context,
	actor, courseID, subCourseID string,
	kind MediaKind,
	ref MediaRef,
	filename string,
	r io.Reader,
	size int64,
) (SubCourse, error) {
	if _, err := svc.ids.RequireAdmin(ctx, actor); err != nil {
		return SubCourse{}, err
	}
	if _, err := svc.LoadSubCourse(ctx, courseID, subCourseID); err != nil {
		return SubCourse{}, err
	}
	url, blobPath, err := svc.upload(ctx, core.JoinPath("courses", courseID, subCourseID, string(kind)), filename, r, size)
	if err != nil {
		return SubCourse{}, err
	}
	if ref.Title == "" {
		ref.Title = filename
	}
	ref.URL, ref.BlobPath = url, blobPath
	return svc.AddMedia(ctx, actor, courseID, subCourseID, kind, ref)
}

// UploadThumbnail stores an image in the blob store and sets it as the course thumbnail.
func (svc *Service) UploadThumbnail(ctx context.Context, actor, courseID, filename string, r io.Reader, size int64) (Course, error) {
	if _, err := svc.ids.RequireAdmin(ctx, actor); err != nil {
		return Course{}, err
	}
	c, err := svc.loadCourse(ctx, courseID)
	if err != nil {
		return Course{}, err
	}
	url, _, err := svc.upload(ctx, core.JoinPath("courses", courseID, "thumbnail"), filename, r, size)
	if err != nil {
		return Course{}, err
	}
	return svc.UpdateCourse(ctx, actor, courseID, UpdateCourse{Name: c.Name, Thumbnail: url})
}

// upload returns the download url & the blob path of the stored file.
func (svc *Service) upload(ctx context.Context, dir, filename string, r io.Reader, size int64) (string, string, error) {
	if svc.blobs == nil {
		return "", "", core.NewBackendError("uploading file", errNoBlobStore)
	}
	name := core.BlobName(filename)
	if name == "" {
		return "", "", core.NewValidationError(nil, core.FieldError{Field: "file", Error: "a file name is required"})
	}
	blobPath := dir + "/" + name
	url, err := svc.blobs.Upload(ctx, blobPath, r, size).Wait()
	return url, blobPath, err
}

func (svc *Service) mutateSubCourse(ctx context.Context, actor, courseID, subCourseID string, fn func(*SubCourse) error) (SubCourse, error) {
	if _, err := svc.ids.RequireAdmin(ctx, actor); err != nil {
		return SubCourse{}, err
	}
	sc, err := svc.LoadSubCourse(ctx, courseID, subCourseID)
	if err != nil {
		return SubCourse{}, err
	}
	if err = fn(&sc); err != nil {
		return SubCourse{}, err
	}
	sc.UpdatedAt = nowFunc()
	if err = svc.store.Set(ctx, core.SubCoursePath(courseID, subCourseID), sc); err != nil {
		return SubCourse{}, core.StoreError(err, "updating sub-course")
	}
	return sc, nil
}

// header strips the sub-courses, stored as their own documents.
func header(c Course) Course {
	c.SubCourses = nil
	return c
}

func withIDs(refs []MediaRef) []MediaRef {
	out := make([]MediaRef, 0, len(refs))
	for _, ref := range refs {
		if ref.ID == "" {
			ref.ID = uuid.New().String()
		}
		out = append(out, ref)
	}
	return out
}
