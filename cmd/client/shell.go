package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/CourseKeeper/internal/access"
	"github.com/atinyakov/CourseKeeper/internal/catalog"
	"github.com/atinyakov/CourseKeeper/internal/checkout"
	"github.com/atinyakov/CourseKeeper/internal/client/account"
	"github.com/atinyakov/CourseKeeper/internal/client/api"
	"github.com/atinyakov/CourseKeeper/internal/client/storage"
	"github.com/atinyakov/CourseKeeper/internal/models"
)

const helpText = `Available commands:
  stages                      list stages
  stage <id>                  show a stage and its courses
  course <id>                 show a course and its lessons
  lesson <course> <lesson>    open a lesson
  sections                    list sections
  section <id> [path...]      browse a section
  login | register | logout   manage the account
  me                          show the account and its purchases
  sync                        push pending purchases and refresh the account
  buy course <id>             buy a course
  buy stage <id>              buy the remaining courses of a stage
  buy all                     buy every course
  lang en|ru                  switch the language
  help | exit`

// shell runs the interactive loop over the catalog, the account and checkout.
type shell struct {
	p        *prompter
	out      io.Writer
	catalog  *catalog.Index
	access   *access.Evaluator
	accounts *account.Reconciler
	checkout *checkout.Orchestrator
	session  *storage.Session
	lang     models.Lang
	log      *zap.Logger
}

func (s *shell) printf(format string, args ...any) { fmt.Fprintf(s.out, format, args...) }
func (s *shell) println(args ...any)               { fmt.Fprintln(s.out, args...) }

func (s *shell) language(ctx context.Context) models.Lang {
	return s.session.Language(ctx, s.lang)
}

// user returns the cached account, or nil when signed out.
func (s *shell) user(ctx context.Context) *models.User {
	if !s.session.Authenticated(ctx) {
		return nil
	}
	return s.accounts.Cached(ctx)
}

// refresh pulls the account from the server. Offline, the cached one stays.
func (s *shell) refresh(ctx context.Context) {
	if !s.session.Authenticated(ctx) {
		return
	}
	_, err := s.accounts.Resync(ctx)
	switch {
	case errors.Is(err, api.ErrTokenInvalid):
		s.println("Your session has expired. Please log in again.")
	case err != nil:
		s.log.Debug("resync failed, using cached account", zap.Error(err))
	}
}

func (s *shell) run(ctx context.Context) {
	for {
		line, ok := s.p.line("coursekeeper> ")
		if !ok {
			return
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if !s.dispatch(ctx, args) {
			s.println("Bye")
			return
		}
	}
}

// dispatch runs one command and reports whether the loop should continue.
func (s *shell) dispatch(ctx context.Context, args []string) bool {
	switch args[0] {
	case "help":
		s.println(helpText)
	case "stages":
		s.stages(ctx)
	case "stage":
		if id, ok := s.intArg(args, 1, "Usage: stage <id>"); ok {
			s.stage(ctx, id)
		}
	case "course":
		if id, ok := s.intArg(args, 1, "Usage: course <id>"); ok {
			s.course(ctx, id)
		}
	case "lesson":
		courseID, ok1 := s.intArg(args, 1, "Usage: lesson <course> <lesson>")
		if !ok1 {
			break
		}
		if lessonID, ok := s.intArg(args, 2, "Usage: lesson <course> <lesson>"); ok {
			s.lesson(ctx, courseID, lessonID)
		}
	case "sections":
		s.sections(ctx)
	case "section":
		if len(args) < 2 {
			s.println("Usage: section <id> [path...]")
			break
		}
		s.section(ctx, args[1], args[2:])
	case "login":
		s.login(ctx, false)
	case "register":
		s.login(ctx, true)
	case "logout":
		if err := s.accounts.Logout(ctx); err != nil {
			s.printf("Logout failed: %v\n", err)
			break
		}
		s.println("Logged out")
	case "me":
		s.me(ctx)
	case "sync":
		s.sync(ctx)
	case "buy":
		s.buyCommand(ctx, args[1:])
	case "lang":
		if len(args) < 2 {
			s.printf("Language: %s\n", s.language(ctx))
			break
		}
		lang := models.ParseLang(args[1])
		if err := s.session.SetLanguage(ctx, lang); err != nil {
			s.printf("Could not save language: %v\n", err)
			break
		}
		s.printf("Language: %s\n", lang)
	case "exit", "quit":
		return false
	default:
		s.println("Unknown command. Type 'help' for a list of commands.")
	}
	return true
}

func (s *shell) intArg(args []string, i int, usage string) (int, bool) {
	if len(args) <= i {
		s.println(usage)
		return 0, false
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		s.println(usage)
		return 0, false
	}
	return n, true
}

func mark(ok bool) string {
	if ok {
		return "open"
	}
	return "locked"
}

func (s *shell) stages(ctx context.Context) {
	lang := s.language(ctx)
	u := s.user(ctx)
	for _, st := range s.catalog.Stages() {
		owned := ""
		if s.access.Stage(u, st.ID).Allowed {
			owned = " [purchased]"
		}
		s.printf("%d. %s (%d courses, %s %s)%s\n",
			st.ID, st.Title.Get(lang), len(st.Courses),
			catalog.FormatPrice(catalog.DeclaredStagePrice(st)), catalog.Currency, owned)
	}
	if s.access.HasFullAccess(u) {
		s.println("You have full access.")
	} else if u != nil {
		s.printf("Full access: %s %s\n", catalog.FormatPrice(s.catalog.FullAccessPrice(u.OpenCategories)), catalog.Currency)
	}
}

func (s *shell) stage(ctx context.Context, id int) {
	s.refresh(ctx)
	st, ok := s.catalog.FindStageByID(id)
	if !ok {
		s.println("Stage not found")
		return
	}
	lang := s.language(ctx)
	u := s.user(ctx)
	s.printf("%s\n%s\n", st.Title.Get(lang), st.Subtitle.Get(lang))
	for _, c := range st.Courses {
		s.printf("  [%d] %s  %s %s  %s\n", c.ID, c.Title.Get(lang),
			catalog.FormatPrice(c.Price), catalog.Currency, mark(s.access.Course(u, c.ID).Allowed))
	}
	var owned []int
	if u != nil {
		owned = u.OpenCategories
	}
	if !s.access.Stage(u, id).Allowed {
		s.printf("Remaining price: %s %s\n", catalog.FormatPrice(catalog.RemainingStagePrice(st.Courses, owned)), catalog.Currency)
	}
}

func (s *shell) course(ctx context.Context, id int) {
	s.refresh(ctx)
	c, ok := s.catalog.FindCourseByID(id)
	if !ok {
		s.println("Course not found")
		return
	}
	lang := s.language(ctx)
	u := s.user(ctx)
	s.printf("%s (%s)\n%s\n", c.Title.Get(lang), c.StageTitle.Get(lang), c.Details.Description.Get(lang))
	for _, l := range c.Details.Lessons {
		s.printf("  %d. %s  %s\n", l.LessonID, l.Title.Get(lang), mark(s.access.Lesson(u, c.ID, l).Allowed))
	}
	if d := s.access.CanPurchaseCourse(u, id); d.Reason == access.ReasonPrerequisite && len(d.Missing) > 0 {
		s.printf("Buy %q first to unlock purchasing this course.\n", d.Missing[0].Title.Get(lang))
	}
}

func (s *shell) lesson(ctx context.Context, courseID, lessonID int) {
	s.refresh(ctx)
	lang := s.language(ctx)
	d := s.access.LessonByID(s.user(ctx), courseID, lessonID)
	switch d.Reason {
	case access.ReasonNotFound:
		s.println("Lesson not found")
		return
	case access.ReasonUnauthenticated:
		s.println("This lesson is locked. Log in and buy the course to open it.")
		return
	}
	if !d.Allowed {
		s.printf("This lesson is locked. Type 'buy course %d' to unlock it.\n", courseID)
		return
	}

	l, _ := s.catalog.FindLesson(courseID, lessonID)
	s.println(l.Title.Get(lang))
	if l.Description != nil {
		s.println(l.Description.Get(lang))
	}
	switch {
	case l.Video.IsMultiPart():
		for _, part := range l.Video.Parts {
			s.printf("  video %d: %s %s\n", part.VideoID, part.Title.Get(lang), part.Video.Get(lang))
		}
	case l.Video.Single != nil:
		s.printf("  video: %s\n", l.Video.Single.Get(lang))
	}
	for _, a := range l.Audio {
		s.printf("  audio %d: %s %s\n", a.AudioID, a.Title.Get(lang), a.Audio.Get(lang))
	}
	if l.Materials != nil {
		for _, m := range l.Materials.Get(lang) {
			s.printf("  material: %s\n", m)
		}
	}
}

func (s *shell) sections(ctx context.Context) {
	lang := s.language(ctx)
	for _, sec := range s.catalog.Sections() {
		s.printf("%s  %s\n", sec.ID, sec.Title.Get(lang))
	}
}

func (s *shell) section(ctx context.Context, id string, path []string) {
	lang := s.language(ctx)
	if len(path) == 0 {
		sec, ok := s.catalog.FindSectionByID(id)
		if !ok {
			s.println("Section not found")
			return
		}
		s.println(sec.Title.Get(lang))
		for _, c := range sec.Courses {
			s.printf("  course [%d] %s\n", c.ID, c.Title.Get(lang))
		}
		for _, sub := range sec.Subsections {
			s.printf("  %s  %s\n", sub.ID, sub.Title.Get(lang))
		}
		return
	}
	sub, ok := s.catalog.FindSubsectionByPath(id, path)
	if !ok {
		s.println("Section not found")
		return
	}
	s.println(sub.Title.Get(lang))
	for _, child := range sub.Subsections {
		s.printf("  %s  %s\n", child.ID, child.Title.Get(lang))
	}
	for _, item := range sub.Items {
		s.printf("  - %s\n", item.Title.Get(lang))
	}
}

// login prompts for credentials and reports whether the user is signed in.
func (s *shell) login(ctx context.Context, register bool) bool {
	email, password, ok := s.p.credentials()
	if !ok {
		s.println("Cancelled")
		return false
	}
	var err error
	if register {
		_, err = s.accounts.Register(ctx, email, password)
	} else {
		_, err = s.accounts.Login(ctx, email, password)
	}
	var apiErr *api.Error
	switch {
	case errors.As(err, &apiErr):
		s.printf("Failed: %s\n", apiErr.Message)
		return false
	case errors.Is(err, api.ErrUnavailable):
		s.println("The server is unreachable. Try again later.")
		return false
	case err != nil:
		s.printf("Failed: %v\n", err)
		return false
	}
	s.printf("Signed in as %s\n", email)
	return true
}

func (s *shell) me(ctx context.Context) {
	if !s.session.Authenticated(ctx) {
		s.println("Not logged in")
		return
	}
	u, err := s.accounts.Resync(ctx)
	if errors.Is(err, api.ErrTokenInvalid) {
		s.println("Your session has expired. Please log in again.")
		return
	}
	if err != nil {
		s.println("(offline, showing saved data)")
	}
	if u == nil {
		s.println("No account data yet")
		return
	}
	s.printf("Email: %s\nName: %s\nRole: %s\n", u.Email, u.UserName, u.Role)
	s.printf("Courses: %v\nStages: %v\n", u.OpenCategories, u.PurchasedStages)
	if s.access.HasFullAccess(u) {
		s.println("Full access: yes")
	}
}

func (s *shell) sync(ctx context.Context) {
	if !s.session.Authenticated(ctx) {
		s.println("Not logged in")
		return
	}
	if _, err := s.accounts.Flush(ctx); err != nil {
		s.printf("Pending purchases were not sent: %v\n", err)
	}
	if _, err := s.accounts.Resync(ctx); err != nil {
		s.printf("Sync failed: %v\n", err)
		return
	}
	s.println("Synced")
}

func (s *shell) buyCommand(ctx context.Context, args []string) {
	const usage = "Usage: buy course <id> | buy stage <id> | buy all"
	if len(args) == 0 {
		s.println(usage)
		return
	}
	switch args[0] {
	case "all":
		s.buy(ctx, checkout.FullAccess(), false)
	case "course", "stage":
		id, ok := s.intArg(args, 1, usage)
		if !ok {
			return
		}
		target := checkout.Course(id)
		if args[0] == "stage" {
			target = checkout.Stage(id)
		}
		s.buy(ctx, target, false)
	default:
		s.println(usage)
	}
}

// buy starts a purchase. A purchase blocked on login resumes once after the
// user signs in.
func (s *shell) buy(ctx context.Context, target checkout.Target, resumed bool) {
	s.refresh(ctx)
	a, err := s.checkout.Begin(ctx, target, s.language(ctx))

	var (
		unauth *checkout.UnauthenticatedError
		prereq *access.PrerequisiteError
	)
	switch {
	case errors.As(err, &unauth):
		if resumed {
			s.println("Please log in to buy.")
			return
		}
		s.println("Log in to continue with your purchase.")
		if s.login(ctx, false) {
			s.buy(ctx, unauth.Intent, true)
		}
		return
	case errors.As(err, &prereq):
		if next, ok := prereq.Next(); ok {
			s.printf("Buy %q (course %d) first.\n", next.Title.Get(s.language(ctx)), next.ID)
		}
		return
	case errors.Is(err, checkout.ErrAlreadyPurchased):
		s.println("You already own this.")
		return
	case errors.Is(err, checkout.ErrNotFound):
		s.println("Not found")
		return
	case errors.Is(err, checkout.ErrPaymentUnavailable):
		s.println("Payment is unavailable right now. Try again later.")
		return
	case err != nil:
		s.printf("Purchase failed: %v\n", err)
		return
	}

	if a.State() == checkout.StateSucceeded {
		s.println("Unlocked at no charge.")
		return
	}
	s.await(ctx, a)
}

// await waits for the payment verdict from the user's input.
func (s *shell) await(ctx context.Context, a *checkout.Attempt) {
	s.printf("Pay %s %s for %s:\n  %s\n", catalog.FormatPrice(a.Amount), a.Currency, a.Description, a.PaymentURL)
	s.println("Press Enter after paying to check the status, paste the address the page sent you to, or type 'cancel'.")

	for !a.State().Terminal() {
		line, ok := s.p.line("payment> ")
		if !ok {
			_ = a.Close(true)
			return
		}

		var (
			outcome checkout.Outcome
			err     error
		)
		switch {
		case line == "cancel":
			if err := a.Close(false); errors.Is(err, checkout.ErrConfirmationRequired) {
				if !s.p.confirm("The payment may still be processing. Close anyway?") {
					continue
				}
				_ = a.Close(true)
			}
			s.println("Payment window closed. A completed payment will appear after the next sync.")
			return
		case strings.HasPrefix(line, "{"):
			outcome, err = a.HandleMessage(ctx, []byte(line))
		case line != "":
			outcome, err = a.HandleNavigation(ctx, line)
		default:
			outcome, err = a.Poll(ctx)
		}

		switch outcome {
		case checkout.OutcomeSucceeded:
			s.println("Payment successful. Content unlocked.")
			return
		case checkout.OutcomeFailed:
			if err != nil {
				s.printf("Payment went through but the purchase was not saved: %v\n", err)
				return
			}
			s.println("Payment failed.")
			if s.p.confirm("Retry?") {
				s.buy(ctx, a.Target, true)
			}
			return
		case checkout.OutcomePending:
			s.println("Payment is still pending.")
		default:
			if err != nil {
				s.printf("Could not check the payment: %v\n", err)
			}
		}
	}
}
